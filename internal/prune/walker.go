package prune

import (
	"fmt"
	"math"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/rangeset"
	"github.com/partwise/partwise/pkg/types"
)

// Context carries everything one resolution needs. It is read-only during the
// walk, so one Context may serve concurrent resolutions.
type Context struct {
	Spec *partition.Spec

	// Params binds placeholders: Params[i] is the value of $i+1. Placeholders
	// past the end are unbound.
	Params []interface{}

	// Row, when set, resolves RowRef operands.
	Row types.Row

	// ForInsert demands a decidable answer: an operand that cannot be resolved
	// is an error instead of a full, lossy result.
	ForInsert bool
}

// WrapperNode is the resolution of one expression node.
type WrapperNode struct {
	Orig Expr
	Args []*WrapperNode

	// Negated is set when Ranges describe NOT Orig, which happens below a Not.
	Negated bool

	// Ranges are the candidate partitions; lossy ones need a recheck.
	Ranges rangeset.RangeSet

	// FoundGap is set when a point lookup fell between partitions.
	FoundGap bool

	// Selectivity estimates the fraction of the table's rows retained.
	Selectivity float64

	// FoundParams is set when an unbound placeholder forced a full result.
	FoundParams bool
}

// Leaves returns the leaf expressions under w, depth first.
func (w *WrapperNode) Leaves() []Expr {
	if len(w.Args) == 0 {
		return []Expr{w.Orig}
	}
	var out []Expr
	for _, a := range w.Args {
		out = append(out, a.Leaves()...)
	}
	return out
}

// Resolve walks expr and returns the partitions that may hold rows satisfying
// it. A nil expr is treated as TRUE.
//
// Negation is pushed down to the leaves rather than applied as a complement
// at the Not node, so that comparisons with NULL select nothing under either
// polarity. For non-NULL operands the result equals the complement.
func Resolve(expr Expr, ctx *Context) (*WrapperNode, error) {
	if ctx == nil || ctx.Spec == nil {
		return nil, errors.NewInternalError("prune: nil context or spec", nil)
	}
	if err := partition.EnsureValid(ctx.Spec); err != nil {
		return nil, err
	}
	if expr == nil {
		expr = &And{}
	}
	w := walker{ctx: ctx, n: ctx.Spec.NumPartitions()}
	return w.walk(expr, false)
}

type walker struct {
	ctx *Context
	n   int
}

func (w *walker) full(orig Expr, neg, lossy bool) *WrapperNode {
	sel := 1.0
	if w.n == 0 {
		sel = 0
	}
	return &WrapperNode{Orig: orig, Negated: neg, Ranges: rangeset.Full(w.n, lossy), Selectivity: sel}
}

func (w *walker) empty(orig Expr, neg bool) *WrapperNode {
	return &WrapperNode{Orig: orig, Negated: neg, Ranges: rangeset.Empty(), Selectivity: 0}
}

func (w *walker) walk(expr Expr, neg bool) (*WrapperNode, error) {
	switch e := expr.(type) {
	case *Compare:
		return w.compare(e, e.Operand, neg)
	case *In:
		return w.in(e, neg)
	case *IsNull:
		// Partition keys are never NULL.
		if e.Not != neg {
			return w.full(e, neg, false), nil
		}
		return w.empty(e, neg), nil
	case *And:
		return w.junction(e, e.Args, !neg, neg)
	case *Or:
		return w.junction(e, e.Args, neg, neg)
	case *Not:
		child, err := w.walk(e.Arg, !neg)
		if err != nil {
			return nil, err
		}
		return &WrapperNode{
			Orig:        e,
			Args:        []*WrapperNode{child},
			Negated:     neg,
			Ranges:      child.Ranges,
			FoundGap:    child.FoundGap,
			Selectivity: child.Selectivity,
			FoundParams: child.FoundParams,
		}, nil
	case *Opaque:
		return w.full(e, neg, true), nil
	default:
		return nil, errors.New(errors.ErrCategoryQuery, errors.CodeInvalidExpr,
			fmt.Sprintf("prune: unknown expression %T", expr))
	}
}

// operand resolves an operand to a value. ok is false when it cannot be
// resolved in this context; param reports whether the cause was a placeholder.
func (w *walker) operand(op Operand) (v interface{}, ok, param bool) {
	switch o := op.(type) {
	case Const:
		return o.Value, true, false
	case Param:
		if o.Index >= 1 && o.Index <= len(w.ctx.Params) {
			return w.ctx.Params[o.Index-1], true, false
		}
		return nil, false, true
	case RowRef:
		if w.ctx.Row != nil {
			if v, found := w.ctx.Row.Get(o.Column); found {
				return v, true, false
			}
		}
		return nil, false, false
	}
	return nil, false, false
}

func (w *walker) compare(orig *Compare, operand Operand, neg bool) (*WrapperNode, error) {
	raw, ok, param := w.operand(operand)
	if !ok {
		if w.ctx.ForInsert {
			return nil, errors.New(errors.ErrCategoryQuery, errors.CodeInvalidExpr,
				fmt.Sprintf("prune: %s cannot be resolved for insert", operand))
		}
		node := w.full(orig, neg, true)
		node.FoundParams = param
		return node, nil
	}
	if raw == nil {
		// Comparison with NULL is never true, and neither is its negation.
		return w.empty(orig, neg), nil
	}

	op, v, outcome, err := w.coerce(orig.Op, raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeInvalidExpr,
			fmt.Sprintf("prune: %s", orig), err)
	}

	node := &WrapperNode{Orig: orig, Ranges: rangeset.Empty()}
	switch outcome {
	case always:
		node.Ranges = rangeset.Full(w.n, false)
	case decide:
		set, gap, err := partition.Select(w.ctx.Spec, op, v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeInvalidExpr,
				fmt.Sprintf("prune: %s", orig), err)
		}
		node.Ranges, node.FoundGap = set, gap
	}
	switch {
	case node.Ranges.IsEmpty() || w.n == 0:
		node.Selectivity = 0
	case op == partition.OpEQ:
		node.Selectivity = 1 / float64(w.n)
	case w.ctx.Spec.Strategy == types.StrategyHash:
		node.Selectivity = 1
	default:
		node.Selectivity = float64(node.Ranges.Count()) / float64(w.n)
	}

	if neg {
		node.Negated = true
		node.Ranges = rangeset.Complement(node.Ranges, w.n)
		node.FoundGap = false
		node.Selectivity = 1 - node.Selectivity
		if w.n == 0 {
			node.Selectivity = 0
		}
	}
	return node, nil
}

// verdict short-circuits a comparison whose outcome does not depend on the
// key.
type verdict int

const (
	decide verdict = iota
	never
	always
)

// coerce converts a comparison value to the key type. A fractional value
// against an integer key is rounded toward the side that keeps the comparison
// equivalent. A value beyond the int64 range compares the same way against
// every integer key, so it is answered without a lookup.
func (w *walker) coerce(op partition.Op, raw interface{}) (partition.Op, interface{}, verdict, error) {
	kt := w.ctx.Spec.KeyType
	if f, isFloat := raw.(float64); isFloat && kt.Kind() == types.KindInt && !math.IsNaN(f) {
		switch {
		case !types.FloatFitsInt64(f):
			above := f > 0
			switch op {
			case partition.OpEQ:
				return op, nil, never, nil
			case partition.OpLT, partition.OpLE:
				if above {
					return op, nil, always, nil
				}
				return op, nil, never, nil
			default:
				if above {
					return op, nil, never, nil
				}
				return op, nil, always, nil
			}
		case f != math.Trunc(f):
			switch op {
			case partition.OpEQ:
				return op, nil, never, nil
			case partition.OpLT, partition.OpLE:
				return partition.OpLE, int64(math.Floor(f)), decide, nil
			default:
				return partition.OpGE, int64(math.Ceil(f)), decide, nil
			}
		}
	}
	v, err := kt.Coerce(raw)
	if err != nil {
		return op, nil, decide, err
	}
	return op, v, decide, nil
}

// in resolves key IN (...) as a disjunction of equalities, or under negation
// as a conjunction of inequalities.
func (w *walker) in(e *In, neg bool) (*WrapperNode, error) {
	args := make([]Expr, len(e.Values))
	for i, v := range e.Values {
		args[i] = &Compare{Op: partition.OpEQ, Operand: v}
	}
	return w.junction(e, args, neg, neg)
}

// junction combines children by intersection (conjunctive) or union. The
// children are walked with polarity neg.
func (w *walker) junction(orig Expr, args []Expr, conjunctive, neg bool) (*WrapperNode, error) {
	node := &WrapperNode{Orig: orig, Negated: neg}
	if conjunctive {
		node.Ranges = rangeset.Full(w.n, false)
		node.Selectivity = 1
	} else {
		node.Ranges = rangeset.Empty()
		node.FoundGap = len(args) > 0
	}

	anyGap := false
	keep := 1.0
	for _, arg := range args {
		child, err := w.walk(arg, neg)
		if err != nil {
			return nil, err
		}
		node.Args = append(node.Args, child)
		node.FoundParams = node.FoundParams || child.FoundParams
		if conjunctive {
			node.Ranges = rangeset.Intersect(node.Ranges, child.Ranges)
			node.Selectivity *= child.Selectivity
			anyGap = anyGap || child.FoundGap
		} else {
			node.Ranges = rangeset.Union(node.Ranges, child.Ranges)
			node.FoundGap = node.FoundGap && child.FoundGap
			keep *= 1 - child.Selectivity
		}
	}

	if conjunctive {
		node.FoundGap = anyGap && node.Ranges.IsEmpty()
	} else {
		node.Selectivity = 1 - keep
	}
	if w.n == 0 {
		node.Selectivity = 0
	}
	return node, nil
}
