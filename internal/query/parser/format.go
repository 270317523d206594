package parser

import (
	"strconv"
	"strings"
)

// printer renders expressions back to SQL. In canonical mode it drops table
// qualifiers and parentheses and lower-cases function names, so that two
// spellings of the same key expression print alike.
type printer struct {
	sb        strings.Builder
	canonical bool
}

func formatStatement(s *SelectStatement) string {
	var p printer
	p.sb.WriteString("SELECT ")
	for i, col := range s.Columns {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.expr(col.Expr)
		p.alias(col.Alias)
	}
	if s.From != nil {
		p.sb.WriteString(" FROM ")
		p.sb.WriteString(aliased(s.From.Name, s.From.Alias))
	}
	if s.Where != nil {
		p.sb.WriteString(" WHERE ")
		p.expr(s.Where)
	}
	return p.sb.String()
}

func formatNode(e Expression, alias string) string {
	var p printer
	p.expr(e)
	p.alias(alias)
	return p.sb.String()
}

// Canonical renders expr without table qualifiers or redundant parentheses,
// so that "t.id + 1" and "(id + 1)" compare equal.
func Canonical(expr Expression) string {
	if expr == nil {
		return ""
	}
	p := printer{canonical: true}
	p.expr(expr)
	return p.sb.String()
}

func aliased(name, alias string) string {
	if alias == "" {
		return name
	}
	return name + " AS " + alias
}

func (p *printer) alias(a string) {
	if a != "" {
		p.sb.WriteString(" AS ")
		p.sb.WriteString(a)
	}
}

func (p *printer) not(neg bool) {
	if neg {
		p.sb.WriteString("NOT ")
	}
}

func (p *printer) list(exprs []Expression) {
	for i, e := range exprs {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.expr(e)
	}
}

func (p *printer) expr(e Expression) {
	switch ex := e.(type) {
	case *ParenExpr:
		if p.canonical {
			p.expr(Unparen(ex))
			return
		}
		p.sb.WriteByte('(')
		p.expr(ex.Expr)
		p.sb.WriteByte(')')
	case *BinaryExpr:
		p.sb.WriteByte('(')
		p.expr(ex.Left)
		p.sb.WriteString(" " + ex.Operator + " ")
		p.expr(ex.Right)
		p.sb.WriteByte(')')
	case *UnaryExpr:
		p.sb.WriteString(ex.Operator + " ")
		p.expr(ex.Operand)
	case *ColumnRef:
		if ex.Table != "" && !p.canonical {
			p.sb.WriteString(ex.Table + ".")
		}
		p.sb.WriteString(ex.Column)
	case *Literal:
		p.sb.WriteString(literalSQL(ex.Value))
	case *ParamRef:
		p.sb.WriteString("$" + strconv.Itoa(ex.Index))
	case *StarExpr:
		if ex.Table != "" {
			p.sb.WriteString(ex.Table + ".")
		}
		p.sb.WriteByte('*')
	case *FunctionCall:
		name := ex.Name
		if p.canonical {
			name = strings.ToLower(name)
		}
		p.sb.WriteString(name + "(")
		p.list(ex.Args)
		p.sb.WriteByte(')')
	case *InExpr:
		p.expr(ex.Expr)
		p.sb.WriteByte(' ')
		p.not(ex.Not)
		p.sb.WriteString("IN (")
		p.list(ex.Values)
		p.sb.WriteByte(')')
	case *BetweenExpr:
		p.expr(ex.Expr)
		p.sb.WriteByte(' ')
		p.not(ex.Not)
		p.sb.WriteString("BETWEEN ")
		p.expr(ex.Low)
		p.sb.WriteString(" AND ")
		p.expr(ex.High)
	case *IsNullExpr:
		p.expr(ex.Expr)
		p.sb.WriteString(" IS ")
		p.not(ex.Not)
		p.sb.WriteString("NULL")
	case *LikeExpr:
		p.expr(ex.Expr)
		p.sb.WriteByte(' ')
		p.not(ex.Not)
		p.sb.WriteString("LIKE ")
		p.expr(ex.Pattern)
	case nil:
	default:
		p.sb.WriteString(e.String())
	}
}

func literalSQL(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "?"
	}
}
