package prune

import (
	"strings"

	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/query/parser"
)

// FromAST lowers a parsed WHERE clause into an Expr over key. Comparisons are
// normalized to "key op operand"; BETWEEN and IN are expanded; anything that
// does not constrain the key becomes Opaque. A nil clause lowers to TRUE.
func FromAST(where parser.Expression, key *partition.KeyExpr) Expr {
	if where == nil {
		return &And{}
	}
	l := lowerer{key: key}
	return l.lower(where)
}

type lowerer struct {
	key *partition.KeyExpr
}

func (l lowerer) lower(e parser.Expression) Expr {
	switch ex := parser.Unparen(e).(type) {
	case *parser.BinaryExpr:
		switch strings.ToUpper(ex.Operator) {
		case "AND":
			return &And{Args: l.flatten(ex, "AND")}
		case "OR":
			return &Or{Args: l.flatten(ex, "OR")}
		case "=", "<>", "!=", "<", "<=", ">", ">=":
			return l.comparison(ex)
		}
	case *parser.UnaryExpr:
		if ex.Operator == "NOT" {
			return &Not{Arg: l.lower(ex.Operand)}
		}
	case *parser.InExpr:
		return l.in(ex)
	case *parser.BetweenExpr:
		return l.between(ex)
	case *parser.IsNullExpr:
		if l.key.Matches(ex.Expr) {
			return &IsNull{Not: ex.Not}
		}
	case *parser.Literal:
		switch v := ex.Value.(type) {
		case bool:
			if v {
				return &And{}
			}
			return &Or{}
		case nil:
			return &Or{}
		}
	}
	return &Opaque{Text: e.String()}
}

// flatten collects the operands of a chain of the same boolean operator.
func (l lowerer) flatten(b *parser.BinaryExpr, op string) []Expr {
	var out []Expr
	for _, side := range []parser.Expression{b.Left, b.Right} {
		if inner, ok := parser.Unparen(side).(*parser.BinaryExpr); ok && strings.EqualFold(inner.Operator, op) {
			out = append(out, l.flatten(inner, op)...)
			continue
		}
		out = append(out, l.lower(side))
	}
	return out
}

func (l lowerer) comparison(b *parser.BinaryExpr) Expr {
	var op partition.Op
	var operand Operand
	ok := false

	switch {
	case l.key.Matches(b.Left):
		operand, ok = l.operand(b.Right)
		op = compareOp(b.Operator)
	case l.key.Matches(b.Right):
		operand, ok = l.operand(b.Left)
		op = compareOp(b.Operator).Commute()
	}
	if !ok {
		return &Opaque{Text: b.String()}
	}
	if b.Operator == "<>" || b.Operator == "!=" {
		return &Not{Arg: &Compare{Op: partition.OpEQ, Operand: operand}}
	}
	return &Compare{Op: op, Operand: operand}
}

// compareOp maps a SQL comparison to an Op; <> maps to = and is negated by
// the caller.
func compareOp(s string) partition.Op {
	op, ok := partition.ParseOp(s)
	if !ok {
		return partition.OpEQ
	}
	return op
}

func (l lowerer) in(ex *parser.InExpr) Expr {
	if !l.key.Matches(ex.Expr) {
		return &Opaque{Text: ex.String()}
	}
	vals := make([]Operand, 0, len(ex.Values))
	for _, v := range ex.Values {
		op, ok := l.operand(v)
		if !ok {
			return &Opaque{Text: ex.String()}
		}
		vals = append(vals, op)
	}
	var out Expr = &In{Values: vals}
	if ex.Not {
		out = &Not{Arg: out}
	}
	return out
}

func (l lowerer) between(ex *parser.BetweenExpr) Expr {
	if !l.key.Matches(ex.Expr) {
		return &Opaque{Text: ex.String()}
	}
	low, ok := l.operand(ex.Low)
	if !ok {
		return &Opaque{Text: ex.String()}
	}
	high, ok := l.operand(ex.High)
	if !ok {
		return &Opaque{Text: ex.String()}
	}
	var out Expr = &And{Args: []Expr{
		&Compare{Op: partition.OpGE, Operand: low},
		&Compare{Op: partition.OpLE, Operand: high},
	}}
	if ex.Not {
		out = &Not{Arg: out}
	}
	return out
}

// operand accepts literals, placeholders and other columns. Columns resolve
// only when a row is supplied at resolution time.
func (l lowerer) operand(e parser.Expression) (Operand, bool) {
	switch ex := parser.Unparen(e).(type) {
	case *parser.Literal:
		return Const{Value: ex.Value}, true
	case *parser.ParamRef:
		return Param{Index: ex.Index}, true
	case *parser.ColumnRef:
		if l.key.Matches(ex) {
			return nil, false
		}
		return RowRef{Column: ex.Column}, true
	}
	return nil, false
}
