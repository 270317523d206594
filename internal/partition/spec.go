// Package partition holds the partition directory of a partitioned table and the
// primitives that map one key value to the partitions that may hold it.
package partition

import (
	"fmt"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/pkg/types"
)

// Bound is one end of a range partition. Inf is -1 for minus infinity, +1 for
// plus infinity and 0 for a finite Value.
type Bound struct {
	Value interface{}
	Inf   int
}

// Finite returns a bound at v.
func Finite(v interface{}) Bound { return Bound{Value: v} }

// NegInf and PosInf are the unbounded ends.
var (
	NegInf = Bound{Inf: -1}
	PosInf = Bound{Inf: 1}
)

// IsFinite reports whether the bound carries a value.
func (b Bound) IsFinite() bool { return b.Inf == 0 }

// compareToBound orders a finite value against a bound.
func compareToBound(kt types.KeyType, v interface{}, b Bound) int {
	switch {
	case b.Inf < 0:
		return 1
	case b.Inf > 0:
		return -1
	}
	return kt.Compare(v, b.Value)
}

// compareBounds orders two bounds.
func compareBounds(kt types.KeyType, a, b Bound) int {
	if a.Inf != 0 || b.Inf != 0 {
		switch {
		case a.Inf < b.Inf:
			return -1
		case a.Inf > b.Inf:
			return 1
		}
		if a.Inf != 0 {
			return 0
		}
	}
	return kt.Compare(a.Value, b.Value)
}

// RangeEntry is one range partition, covering [Min, Max).
type RangeEntry struct {
	Min   Bound
	Max   Bound
	Name  string
	Index int
}

// HashDirectory describes a hash-partitioned table: value v lives in
// partition hash(v) mod Count.
type HashDirectory struct {
	Count uint32
	Func  types.HashFunc
}

// Spec is an immutable snapshot of a table's partitioning. Callers must not
// modify a Spec once it is published; build a new one instead.
type Spec struct {
	TableID  string
	Strategy types.PartitionStrategy
	KeyExpr  *KeyExpr
	KeyType  types.KeyType

	// Ranges is sorted by Min and Ranges[i].Index == i (range mode).
	Ranges []RangeEntry

	// Hash is the hash directory (hash mode).
	Hash HashDirectory

	Version    int64
	AutoCreate bool
	Interval   string

	// validated is set by FromDef once the directory passed Validate.
	validated bool
}

// NumPartitions returns N, the size of the partition index space.
func (s *Spec) NumPartitions() int {
	if s.Strategy == types.StrategyHash {
		return int(s.Hash.Count)
	}
	return len(s.Ranges)
}

// PartitionName returns the display name of partition i.
func (s *Spec) PartitionName(i int) string {
	if s.Strategy == types.StrategyRange && i >= 0 && i < len(s.Ranges) {
		return s.Ranges[i].Name
	}
	return fmt.Sprintf("%s_%d", s.TableID, i)
}

// FromDef builds and validates a Spec from its catalog form.
func FromDef(def types.TableDef) (*Spec, error) {
	if def.TableID == "" {
		return nil, errors.NewInvalidSpec("table id is empty")
	}
	strategy, err := types.ParsePartitionStrategy(string(def.Strategy))
	if err != nil {
		return nil, errors.NewInvalidSpec(err.Error())
	}
	kt, err := types.LookupKeyType(def.KeyKind)
	if err != nil {
		return nil, errors.NewInvalidSpec(err.Error())
	}
	keyExpr, err := CompileKeyExpr(def.KeyExpr)
	if err != nil {
		return nil, err
	}

	spec := &Spec{
		TableID:    def.TableID,
		Strategy:   strategy,
		KeyExpr:    keyExpr,
		KeyType:    kt,
		Version:    def.Version,
		AutoCreate: def.AutoCreate,
		Interval:   def.Interval,
	}

	switch strategy {
	case types.StrategyHash:
		if len(def.Ranges) > 0 {
			return nil, errors.NewInvalidSpec("hash table must not list range partitions")
		}
		fn, err := types.ParseHashFunc(string(def.HashFunc))
		if err != nil {
			return nil, errors.NewInvalidSpec(err.Error())
		}
		spec.Hash = HashDirectory{Count: def.HashPartitions, Func: fn}
	case types.StrategyRange:
		spec.Ranges = make([]RangeEntry, len(def.Ranges))
		for i, rd := range def.Ranges {
			entry := RangeEntry{Name: rd.Name, Index: i, Min: NegInf, Max: PosInf}
			if rd.Min != "" {
				v, err := kt.Parse(rd.Min)
				if err != nil {
					return nil, errors.NewInvalidSpec(fmt.Sprintf("partition %q: min: %v", rd.Name, err))
				}
				entry.Min = Finite(v)
			}
			if rd.Max != "" {
				v, err := kt.Parse(rd.Max)
				if err != nil {
					return nil, errors.NewInvalidSpec(fmt.Sprintf("partition %q: max: %v", rd.Name, err))
				}
				entry.Max = Finite(v)
			}
			spec.Ranges[i] = entry
		}
	}

	if err := Validate(spec); err != nil {
		return nil, err
	}
	spec.validated = true
	return spec, nil
}

// EnsureValid validates a spec that was not built by FromDef. Specs from
// FromDef are already known to be well formed.
func EnsureValid(spec *Spec) error {
	if spec == nil {
		return errors.NewInvalidSpec("nil spec")
	}
	if spec.validated {
		return nil
	}
	return Validate(spec)
}

// Def converts the snapshot back to its catalog form.
func (s *Spec) Def() types.TableDef {
	def := types.TableDef{
		TableID:    s.TableID,
		Strategy:   s.Strategy,
		KeyKind:    s.KeyType.Kind(),
		AutoCreate: s.AutoCreate,
		Interval:   s.Interval,
		Version:    s.Version,
	}
	if s.KeyExpr != nil {
		def.KeyExpr = s.KeyExpr.Source
	}
	if s.Strategy == types.StrategyHash {
		def.HashFunc = s.Hash.Func
		def.HashPartitions = s.Hash.Count
		return def
	}
	def.Ranges = make([]types.RangeDef, len(s.Ranges))
	for i, e := range s.Ranges {
		rd := types.RangeDef{Name: e.Name}
		if e.Min.IsFinite() {
			rd.Min = s.KeyType.Format(e.Min.Value)
		}
		if e.Max.IsFinite() {
			rd.Max = s.KeyType.Format(e.Max.Value)
		}
		def.Ranges[i] = rd
	}
	return def
}
