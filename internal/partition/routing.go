package partition

import (
	"fmt"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/rangeset"
	"github.com/partwise/partwise/pkg/types"
)

// Route is where a single row belongs.
type Route struct {
	// Index and Partition are set when Gap is false.
	Index     int
	Partition string

	// Gap is true when no partition covers the row's key; the caller decides
	// whether to create one or reject the row.
	Gap bool

	// Key is the evaluated, coerced key value.
	Key interface{}
}

// Router determines the partition of a row for one spec snapshot.
type Router struct {
	spec *Spec

	// sel is Select, replaceable in tests.
	sel func(*Spec, Op, interface{}) (rangeset.RangeSet, bool, error)
}

// NewRouter creates a router over an immutable spec.
func NewRouter(spec *Spec) (*Router, error) {
	if spec == nil {
		return nil, errors.NewInvalidSpec("routing: nil spec")
	}
	if err := EnsureValid(spec); err != nil {
		return nil, err
	}
	return &Router{spec: spec, sel: Select}, nil
}

// Spec returns the snapshot this router routes against.
func (r *Router) Spec() *Spec { return r.spec }

// RouteRow evaluates the key expression against row and selects its partition.
func (r *Router) RouteRow(row types.Row) (Route, error) {
	raw, err := r.spec.KeyExpr.Eval(row)
	if err != nil {
		return Route{}, errors.NewInvalidRow("routing: evaluate key", err)
	}
	if raw == nil {
		return Route{}, errors.NewInvalidRow("routing: evaluate key", types.ErrNullKey)
	}
	key, err := r.spec.KeyType.Coerce(raw)
	if err != nil {
		return Route{}, errors.NewInvalidRow("routing: coerce key", err)
	}

	set, gap, err := r.sel(r.spec, OpEQ, key)
	if err != nil {
		return Route{}, errors.NewInvalidRow("routing: select", err)
	}
	if gap || set.IsEmpty() {
		return Route{Gap: true, Key: key}, nil
	}
	if set.Count() != 1 {
		return Route{}, errors.NewRouteError(errors.CodeConsistencyViolation,
			fmt.Sprintf("routing: key %s matches %d partitions of %q: %s",
				r.spec.KeyType.Format(key), set.Count(), r.spec.TableID, set))
	}

	idx := set[0].Lower
	return Route{Index: idx, Partition: r.spec.PartitionName(idx), Key: key}, nil
}

// Batch is the result of routing a set of rows.
type Batch struct {
	// Groups maps partition index to the rows it receives, in input order.
	Groups map[int][]types.Row

	// Gaps holds rows no partition covers.
	Gaps []types.Row
}

// RouteRows groups rows by their partition. Any row error aborts the batch.
func (r *Router) RouteRows(rows []types.Row) (*Batch, error) {
	b := &Batch{Groups: make(map[int][]types.Row)}
	for i, row := range rows {
		route, err := r.RouteRow(row)
		if err != nil {
			return nil, fmt.Errorf("routing: row %d: %w", i, err)
		}
		if route.Gap {
			b.Gaps = append(b.Gaps, row)
			continue
		}
		b.Groups[route.Index] = append(b.Groups[route.Index], row)
	}
	return b, nil
}
