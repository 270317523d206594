package parser

// Walk visits expr and its children depth-first. If fn returns false the
// children of that node are skipped.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch ex := expr.(type) {
	case *BinaryExpr:
		Walk(ex.Left, fn)
		Walk(ex.Right, fn)
	case *UnaryExpr:
		Walk(ex.Operand, fn)
	case *ParenExpr:
		Walk(ex.Expr, fn)
	case *FunctionCall:
		for _, a := range ex.Args {
			Walk(a, fn)
		}
	case *InExpr:
		Walk(ex.Expr, fn)
		for _, v := range ex.Values {
			Walk(v, fn)
		}
	case *BetweenExpr:
		Walk(ex.Expr, fn)
		Walk(ex.Low, fn)
		Walk(ex.High, fn)
	case *IsNullExpr:
		Walk(ex.Expr, fn)
	case *LikeExpr:
		Walk(ex.Expr, fn)
		Walk(ex.Pattern, fn)
	}
}

// ColumnRefs returns the distinct column names referenced by expr, in order
// of first appearance.
func ColumnRefs(expr Expression) []string {
	seen := make(map[string]bool)
	var cols []string
	Walk(expr, func(e Expression) bool {
		if c, ok := e.(*ColumnRef); ok && !seen[c.Column] {
			seen[c.Column] = true
			cols = append(cols, c.Column)
		}
		return true
	})
	return cols
}

// MaxParam returns the highest placeholder index used in expr, or 0.
func MaxParam(expr Expression) int {
	n := 0
	Walk(expr, func(e Expression) bool {
		if p, ok := e.(*ParamRef); ok && p.Index > n {
			n = p.Index
		}
		return true
	})
	return n
}

// Conjuncts splits expr on top-level AND.
func Conjuncts(expr Expression) []Expression {
	expr = Unparen(expr)
	if b, ok := expr.(*BinaryExpr); ok && b.Operator == "AND" {
		return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
	}
	if expr == nil {
		return nil
	}
	return []Expression{expr}
}
