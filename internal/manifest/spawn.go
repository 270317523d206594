package manifest

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/notify"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/pkg/types"
)

// DefaultMaxSpawn bounds the partitions created for a single value.
const DefaultMaxSpawn = 16

var errAlreadyCovered = stderrors.New("manifest: value already covered")

// SpawnPartitionsForValue creates interval-sized range partitions until value
// is covered, extending the directory past its last partition or before its
// first. Interior gaps are never filled. The table must be range partitioned
// with AutoCreate and an Interval. It returns the resulting snapshot and the
// number of partitions created, which is zero when value was already covered.
func SpawnPartitionsForValue(ctx context.Context, catalog Catalog, tableID string, value interface{}, maxSpawn int) (*partition.Spec, int, error) {
	if maxSpawn <= 0 {
		maxSpawn = DefaultMaxSpawn
	}

	spec, err := catalog.GetPartitioningSpec(ctx, tableID)
	if err != nil {
		return nil, 0, err
	}
	if covered, err := covers(spec, value); err != nil || covered {
		return spec, 0, err
	}

	added := 0
	spec, err = catalog.UpdateTable(ctx, tableID, 0, notify.PartitionsAdded, func(def *types.TableDef) error {
		n, err := extendToCover(def, value, maxSpawn)
		added = n
		return err
	})
	if stderrors.Is(err, errAlreadyCovered) {
		// Another writer got there first.
		spec, err = catalog.GetPartitioningSpec(ctx, tableID)
		return spec, 0, err
	}
	if err != nil {
		return nil, 0, err
	}
	return spec, added, nil
}

func covers(spec *partition.Spec, value interface{}) (bool, error) {
	set, _, err := partition.Select(spec, partition.OpEQ, value)
	if err != nil {
		return false, errors.NewInvalidRow("key value does not fit the key type", err)
	}
	return !set.IsEmpty(), nil
}

func spawnRefused(tableID, reason string) error {
	return errors.NewCatalogError(errors.CodeSpawnNotAllowed,
		fmt.Sprintf("table %q: %s", tableID, reason), nil)
}

// extendToCover appends or prepends partitions to def so that it covers value.
func extendToCover(def *types.TableDef, value interface{}, maxSpawn int) (int, error) {
	if def.Strategy != types.StrategyRange || !def.AutoCreate {
		return 0, spawnRefused(def.TableID, "automatic partition creation is disabled")
	}
	kt, err := types.LookupKeyType(def.KeyKind)
	if err != nil {
		return 0, errors.NewInvalidSpec(err.Error())
	}
	st, err := newStepper(def.KeyKind, def.Interval)
	if err != nil {
		return 0, spawnRefused(def.TableID, err.Error())
	}
	v, err := kt.Coerce(value)
	if err != nil {
		return 0, errors.NewInvalidRow("key value does not fit the key type", err)
	}

	if len(def.Ranges) == 0 {
		lo := st.align(v)
		def.Ranges = append(def.Ranges, types.RangeDef{
			Name: nextPartitionName(def),
			Min:  kt.Format(lo),
			Max:  kt.Format(st.add(lo, 1)),
		})
		return 1, nil
	}

	first, last := def.Ranges[0], def.Ranges[len(def.Ranges)-1]
	switch {
	case last.Max != "" && kt.Compare(v, mustParse(kt, last.Max)) >= 0:
		cur := mustParse(kt, last.Max)
		n := 0
		for kt.Compare(v, cur) >= 0 {
			if n == maxSpawn {
				return 0, spawnRefused(def.TableID, fmt.Sprintf("value needs more than %d new partitions", maxSpawn))
			}
			next := st.add(cur, 1)
			def.Ranges = append(def.Ranges, types.RangeDef{
				Name: nextPartitionName(def),
				Min:  kt.Format(cur),
				Max:  kt.Format(next),
			})
			cur = next
			n++
		}
		return n, nil

	case first.Min != "" && kt.Compare(v, mustParse(kt, first.Min)) < 0:
		cur := mustParse(kt, first.Min)
		var fresh []types.RangeDef
		for kt.Compare(v, cur) < 0 {
			if len(fresh) == maxSpawn {
				return 0, spawnRefused(def.TableID, fmt.Sprintf("value needs more than %d new partitions", maxSpawn))
			}
			prev := st.add(cur, -1)
			fresh = append([]types.RangeDef{{Min: kt.Format(prev), Max: kt.Format(cur)}}, fresh...)
			cur = prev
		}
		for i, name := range partitionNames(def, len(fresh)) {
			fresh[i].Name = name
		}
		def.Ranges = append(fresh, def.Ranges...)
		return len(fresh), nil
	}

	spec, err := partition.FromDef(*def)
	if err != nil {
		return 0, err
	}
	if covered, _ := covers(spec, v); covered {
		return 0, errAlreadyCovered
	}
	return 0, spawnRefused(def.TableID, "value falls in a gap between partitions")
}

// mustParse parses a bound that was validated when it was stored.
func mustParse(kt types.KeyType, s string) interface{} {
	v, err := kt.Parse(s)
	if err != nil {
		panic(fmt.Sprintf("manifest: stored bound %q does not parse: %v", s, err))
	}
	return v
}

// stepper moves a key by whole intervals.
type stepper struct {
	add   func(v interface{}, n int) interface{}
	align func(v interface{}) interface{}
}

func newStepper(kind types.KeyKind, interval string) (stepper, error) {
	if interval == "" {
		return stepper{}, fmt.Errorf("no interval configured")
	}
	switch kind {
	case types.KindInt:
		step, err := strconv.ParseInt(interval, 10, 64)
		if err != nil || step <= 0 {
			return stepper{}, fmt.Errorf("interval %q is not a positive integer", interval)
		}
		return stepper{
			add: func(v interface{}, n int) interface{} { return v.(int64) + int64(n)*step },
			align: func(v interface{}) interface{} {
				x := v.(int64)
				q := x / step
				if x%step != 0 && x < 0 {
					q--
				}
				return q * step
			},
		}, nil
	case types.KindTimestamp:
		d, err := time.ParseDuration(interval)
		if err != nil || d <= 0 {
			return stepper{}, fmt.Errorf("interval %q is not a positive duration", interval)
		}
		return stepper{
			add:   func(v interface{}, n int) interface{} { return v.(time.Time).Add(time.Duration(n) * d) },
			align: func(v interface{}) interface{} { return v.(time.Time).Truncate(d) },
		}, nil
	}
	return stepper{}, fmt.Errorf("automatic partition creation needs an int or timestamp key, not %s", kind)
}
