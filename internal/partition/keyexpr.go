package partition

import (
	"fmt"
	"math"
	"strings"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/query/parser"
	"github.com/partwise/partwise/pkg/types"
)

// KeyExpr is a compiled partitioning key expression such as "user_id" or
// "account_id / 1000". It supports column references, literals, unary minus,
// + - * / and the functions lower, upper and abs.
type KeyExpr struct {
	Source  string
	Expr    parser.Expression
	Columns []string
	canon   string
}

// CompileKeyExpr parses and checks a key expression.
func CompileKeyExpr(src string) (*KeyExpr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.NewInvalidSpec("key expression is empty")
	}
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryValidation, errors.CodeInvalidSpec, "key expression", err)
	}
	if err := checkKeyExpr(expr); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryValidation, errors.CodeInvalidSpec, "key expression", err)
	}
	cols := parser.ColumnRefs(expr)
	if len(cols) == 0 {
		return nil, errors.NewInvalidSpec("key expression references no column")
	}
	return &KeyExpr{Source: src, Expr: expr, Columns: cols, canon: parser.Canonical(expr)}, nil
}

// Matches reports whether e is structurally the key expression.
func (k *KeyExpr) Matches(e parser.Expression) bool {
	return parser.Canonical(e) == k.canon
}

// Column returns the column name when the key is a bare column.
func (k *KeyExpr) Column() (string, bool) {
	if c, ok := parser.Unparen(k.Expr).(*parser.ColumnRef); ok {
		return c.Column, true
	}
	return "", false
}

func (k *KeyExpr) String() string { return k.Source }

func checkKeyExpr(expr parser.Expression) error {
	var bad error
	parser.Walk(expr, func(e parser.Expression) bool {
		switch ex := e.(type) {
		case *parser.ColumnRef, *parser.Literal, *parser.ParenExpr:
		case *parser.UnaryExpr:
			if ex.Operator != "-" {
				bad = fmt.Errorf("operator %s is not allowed in a key expression", ex.Operator)
			}
		case *parser.BinaryExpr:
			switch ex.Operator {
			case "+", "-", "*", "/":
			default:
				bad = fmt.Errorf("operator %s is not allowed in a key expression", ex.Operator)
			}
		case *parser.FunctionCall:
			if _, ok := keyFuncs[ex.Name]; !ok || len(ex.Args) != 1 {
				bad = fmt.Errorf("function %s is not allowed in a key expression", ex.Name)
			}
		default:
			bad = fmt.Errorf("%s is not allowed in a key expression", e)
		}
		return bad == nil
	})
	return bad
}

var keyFuncs = map[string]func(interface{}) (interface{}, error){
	"lower": func(v interface{}) (interface{}, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("lower: expected text, got %T", v)
		}
		return strings.ToLower(s), nil
	},
	"upper": func(v interface{}) (interface{}, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("upper: expected text, got %T", v)
		}
		return strings.ToUpper(s), nil
	},
	"abs": func(v interface{}) (interface{}, error) {
		switch x := v.(type) {
		case int64:
			if x < 0 {
				return -x, nil
			}
			return x, nil
		case float64:
			return math.Abs(x), nil
		}
		return nil, fmt.Errorf("abs: expected a number, got %T", v)
	},
}

// Eval computes the key for row. A nil result with nil error is a NULL key.
func (k *KeyExpr) Eval(row types.Row) (interface{}, error) {
	return evalKey(k.Expr, row)
}

func evalKey(e parser.Expression, row types.Row) (interface{}, error) {
	switch ex := e.(type) {
	case *parser.ColumnRef:
		v, ok := row.Get(ex.Column)
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrMissingColumn, ex.Column)
		}
		return normalizeNumber(v), nil
	case *parser.Literal:
		return ex.Value, nil
	case *parser.ParenExpr:
		return evalKey(ex.Expr, row)
	case *parser.UnaryExpr:
		v, err := evalKey(ex.Operand, row)
		if err != nil || v == nil {
			return nil, err
		}
		return arith("-", int64(0), v)
	case *parser.BinaryExpr:
		l, err := evalKey(ex.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := evalKey(ex.Right, row)
		if err != nil {
			return nil, err
		}
		if l == nil || r == nil {
			return nil, nil
		}
		return arith(ex.Operator, l, r)
	case *parser.FunctionCall:
		v, err := evalKey(ex.Args[0], row)
		if err != nil || v == nil {
			return nil, err
		}
		return keyFuncs[ex.Name](v)
	}
	return nil, fmt.Errorf("cannot evaluate %s", e)
}

func normalizeNumber(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// arith applies a binary arithmetic operator. Two integers stay integral
// (division truncates); anything involving a float is computed in float64.
func arith(op string, l, r interface{}) (interface{}, error) {
	li, lok := l.(int64)
	ri, rok := r.(int64)
	if lok && rok {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero in key expression")
			}
			return li / ri, nil
		}
		return nil, fmt.Errorf("unsupported operator %s", op)
	}

	lf, ok := toFloat(l)
	if !ok {
		return nil, fmt.Errorf("cannot use %T in arithmetic", l)
	}
	rf, ok := toFloat(r)
	if !ok {
		return nil, fmt.Errorf("cannot use %T in arithmetic", r)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero in key expression")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
