package planner

import (
	"github.com/partwise/partwise/internal/query/parser"
)

// RewrittenQuery is the statement to run against one scan target.
type RewrittenQuery struct {
	// Target is the partition the statement reads.
	Target ScanTarget

	// Statement reads Target instead of the parent table. Its WHERE clause
	// omits the top-level conjuncts every row of Target already satisfies.
	Statement *parser.SelectStatement

	// Dropped lists the omitted conjuncts.
	Dropped []parser.Expression
}

// Rewrite returns one statement per scan target of plan, in target order.
// The parent table keeps its alias, or is aliased by its own name, so that
// qualified column references still resolve.
func Rewrite(plan *Plan) []*RewrittenQuery {
	if plan == nil || len(plan.Targets) == 0 {
		return nil
	}

	alias := plan.Statement.From.Alias
	if alias == "" {
		alias = plan.Statement.From.Name
	}

	var (
		conjuncts []parser.Expression
		exact     = map[int][]bool{}
	)
	if plan.Statement.Where != nil {
		cs, bits := exactPartitions(plan.spec, plan.Statement.Where, plan.params)
		conjuncts = cs
		for _, t := range plan.Targets {
			row := make([]bool, len(cs))
			for i, b := range bits {
				row[i] = b.Test(uint(t.Index))
			}
			exact[t.Index] = row
		}
	}

	out := make([]*RewrittenQuery, len(plan.Targets))
	for i, t := range plan.Targets {
		var keep, dropped []parser.Expression
		for j, c := range conjuncts {
			if exact[t.Index][j] {
				dropped = append(dropped, c)
			} else {
				keep = append(keep, c)
			}
		}
		out[i] = &RewrittenQuery{
			Target: t,
			Statement: &parser.SelectStatement{
				Columns: plan.Statement.Columns,
				From:    &parser.TableRef{Name: t.Name, Alias: alias},
				Where:   conjoin(keep),
			},
			Dropped: dropped,
		}
	}
	return out
}

// conjoin rebuilds a left-deep AND chain; nil for no conjuncts.
func conjoin(exprs []parser.Expression) parser.Expression {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &parser.BinaryExpr{Left: out, Operator: "AND", Right: e}
	}
	return out
}
