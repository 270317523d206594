package parser

// Statement is a parsed SQL statement. SELECT is the only kind partwise plans.
type Statement interface {
	statementNode()
	String() string
}

// Expression is a node of a WHERE clause, projection or key expression.
type Expression interface {
	expressionNode()
	String() string
}

// SelectStatement keeps what partition selection needs: the projection is
// carried through for rewriting and the WHERE clause feeds the pruner.
type SelectStatement struct {
	Columns []SelectColumn
	From    *TableRef
	Where   Expression
}

// SelectColumn is one projected expression with an optional alias.
type SelectColumn struct {
	Expr  Expression
	Alias string
}

// TableRef names the FROM table, optionally aliased.
type TableRef struct {
	Name  string
	Alias string
}

// BinaryExpr covers comparisons, arithmetic and AND/OR. Operator is upper
// case for keywords.
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

// UnaryExpr is NOT x or -x.
type UnaryExpr struct {
	Operator string
	Operand  Expression
}

// ColumnRef is a possibly qualified column.
type ColumnRef struct {
	Table  string
	Column string
}

// Literal holds an int64, float64, string, bool or nil (NULL).
type Literal struct {
	Value interface{}
}

// ParamRef is a positional placeholder ($1 or ?). Index is 1-based.
type ParamRef struct {
	Index int
}

// StarExpr is * or t.* in a projection.
type StarExpr struct {
	Table string
}

// FunctionCall is name(args...).
type FunctionCall struct {
	Name string
	Args []Expression
}

// InExpr is x [NOT] IN (values...).
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

// BetweenExpr is x [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
	Not  bool
}

// IsNullExpr is x IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

// LikeExpr is x [NOT] LIKE pattern. The pruner treats it as opaque.
type LikeExpr struct {
	Expr    Expression
	Pattern Expression
	Not     bool
}

// ParenExpr keeps explicit parentheses so statements print back as written.
type ParenExpr struct {
	Expr Expression
}

func (*SelectStatement) statementNode() {}

func (*BinaryExpr) expressionNode()   {}
func (*UnaryExpr) expressionNode()    {}
func (*ColumnRef) expressionNode()    {}
func (*Literal) expressionNode()      {}
func (*ParamRef) expressionNode()     {}
func (*StarExpr) expressionNode()     {}
func (*FunctionCall) expressionNode() {}
func (*InExpr) expressionNode()       {}
func (*BetweenExpr) expressionNode()  {}
func (*IsNullExpr) expressionNode()   {}
func (*LikeExpr) expressionNode()     {}
func (*ParenExpr) expressionNode()    {}

func (s *SelectStatement) String() string { return formatStatement(s) }
func (c SelectColumn) String() string     { return formatNode(c.Expr, c.Alias) }
func (t *TableRef) String() string        { return aliased(t.Name, t.Alias) }

func (b *BinaryExpr) String() string   { return formatNode(b, "") }
func (u *UnaryExpr) String() string    { return formatNode(u, "") }
func (c *ColumnRef) String() string    { return formatNode(c, "") }
func (l *Literal) String() string      { return formatNode(l, "") }
func (p *ParamRef) String() string     { return formatNode(p, "") }
func (s *StarExpr) String() string     { return formatNode(s, "") }
func (f *FunctionCall) String() string { return formatNode(f, "") }
func (i *InExpr) String() string       { return formatNode(i, "") }
func (b *BetweenExpr) String() string  { return formatNode(b, "") }
func (i *IsNullExpr) String() string   { return formatNode(i, "") }
func (l *LikeExpr) String() string     { return formatNode(l, "") }
func (p *ParenExpr) String() string    { return formatNode(p, "") }

// Unparen strips any number of enclosing parentheses.
func Unparen(e Expression) Expression {
	for {
		p, ok := e.(*ParenExpr)
		if !ok {
			return e
		}
		e = p.Expr
	}
}
