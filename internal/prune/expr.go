// Package prune resolves boolean predicates over a partitioned table into the
// set of partitions that can hold matching rows.
package prune

import (
	"fmt"
	"strings"

	"github.com/partwise/partwise/internal/partition"
)

// Expr is a predicate over the partitioning key. The set of implementations is
// closed: Compare, In, IsNull, And, Or, Not and Opaque.
type Expr interface {
	exprNode()
	String() string
}

// Operand is the non-key side of a comparison: Const, Param or RowRef.
type Operand interface {
	operandNode()
	String() string
}

// Const is a literal. A nil Value is SQL NULL.
type Const struct {
	Value interface{}
}

// Param is a positional placeholder bound at execution time. Index is 1-based.
type Param struct {
	Index int
}

// RowRef names a column of the row being evaluated. It resolves only when the
// Context carries a row.
type RowRef struct {
	Column string
}

func (Const) operandNode()  {}
func (Param) operandNode()  {}
func (RowRef) operandNode() {}

func (c Const) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("%v", c.Value)
}

func (p Param) String() string  { return fmt.Sprintf("$%d", p.Index) }
func (r RowRef) String() string { return "row." + r.Column }

// Compare is "key Op Operand".
type Compare struct {
	Op      partition.Op
	Operand Operand
}

// In is "key IN (Values...)".
type In struct {
	Values []Operand
}

// IsNull is "key IS [NOT] NULL".
type IsNull struct {
	Not bool
}

// And is a conjunction. An empty And is true.
type And struct {
	Args []Expr
}

// Or is a disjunction. An empty Or is false.
type Or struct {
	Args []Expr
}

// Not negates Arg.
type Not struct {
	Arg Expr
}

// Opaque is any predicate that says nothing usable about the key.
type Opaque struct {
	Text string
}

func (*Compare) exprNode() {}
func (*In) exprNode()      {}
func (*IsNull) exprNode()  {}
func (*And) exprNode()     {}
func (*Or) exprNode()      {}
func (*Not) exprNode()     {}
func (*Opaque) exprNode()  {}

func (c *Compare) String() string {
	return fmt.Sprintf("key %s %s", c.Op, c.Operand)
}

func (i *In) String() string {
	vals := make([]string, len(i.Values))
	for j, v := range i.Values {
		vals[j] = v.String()
	}
	return "key IN (" + strings.Join(vals, ", ") + ")"
}

func (n *IsNull) String() string {
	if n.Not {
		return "key IS NOT NULL"
	}
	return "key IS NULL"
}

func (a *And) String() string { return joinExprs(a.Args, " AND ", "TRUE") }
func (o *Or) String() string  { return joinExprs(o.Args, " OR ", "FALSE") }
func (n *Not) String() string { return "NOT " + n.Arg.String() }

func (o *Opaque) String() string {
	if o.Text == "" {
		return "<opaque>"
	}
	return "<" + o.Text + ">"
}

func joinExprs(args []Expr, sep, empty string) string {
	if len(args) == 0 {
		return empty
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Convenience constructors.

// Cmp builds "key op v" against a constant.
func Cmp(op partition.Op, v interface{}) *Compare {
	return &Compare{Op: op, Operand: Const{Value: v}}
}

// Eq builds "key = v".
func Eq(v interface{}) *Compare { return Cmp(partition.OpEQ, v) }

// NotEq builds "key <> v" as NOT (key = v).
func NotEq(v interface{}) Expr { return &Not{Arg: Eq(v)} }

// AllOf builds a conjunction.
func AllOf(args ...Expr) *And { return &And{Args: args} }

// AnyOf builds a disjunction.
func AnyOf(args ...Expr) *Or { return &Or{Args: args} }
