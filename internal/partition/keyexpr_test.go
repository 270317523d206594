package partition

import (
	"testing"

	"github.com/partwise/partwise/internal/query/parser"
	"github.com/partwise/partwise/pkg/types"
)

func TestKeyExpr_Eval(t *testing.T) {
	tests := []struct {
		src  string
		row  types.Row
		want interface{}
	}{
		{"id", types.Row{"id": int64(7)}, int64(7)},
		{"id", types.Row{"id": 7}, int64(7)},
		{"a + b * 2", types.Row{"a": int64(1), "b": int64(3)}, int64(7)},
		{"a / 2", types.Row{"a": int64(7)}, int64(3)},
		{"a / 2", types.Row{"a": 7.0}, 3.5},
		{"-a", types.Row{"a": int64(4)}, int64(-4)},
		{"lower(name)", types.Row{"name": "ACME"}, "acme"},
		{"abs(x - 10)", types.Row{"x": int64(3)}, int64(7)},
		{"a + 1", types.Row{"a": nil}, nil},
	}

	for _, tt := range tests {
		k, err := CompileKeyExpr(tt.src)
		if err != nil {
			t.Fatalf("%q: unexpected compile error: %v", tt.src, err)
		}
		got, err := k.Eval(tt.row)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q over %v: got %v (%T), want %v (%T)", tt.src, tt.row, got, got, tt.want, tt.want)
		}
	}
}

func TestKeyExpr_EvalErrors(t *testing.T) {
	tests := []struct {
		src string
		row types.Row
	}{
		{"a / b", types.Row{"a": int64(1), "b": int64(0)}},
		{"a + 1", types.Row{"a": "x"}},
		{"upper(a)", types.Row{"a": int64(1)}},
		{"a", types.Row{}},
	}

	for _, tt := range tests {
		k, err := CompileKeyExpr(tt.src)
		if err != nil {
			t.Fatalf("%q: unexpected compile error: %v", tt.src, err)
		}
		if _, err := k.Eval(tt.row); err == nil {
			t.Errorf("%q over %v: expected error", tt.src, tt.row)
		}
	}
}

func TestKeyExpr_Matches(t *testing.T) {
	k, err := CompileKeyExpr("account_id / 1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	same, _ := parser.ParseExpr("(o.account_id / 1000)")
	other, _ := parser.ParseExpr("account_id / 100")
	if !k.Matches(same) {
		t.Error("qualified, parenthesized form should match")
	}
	if k.Matches(other) {
		t.Error("different divisor should not match")
	}
	if _, ok := k.Column(); ok {
		t.Error("arithmetic key is not a bare column")
	}

	bare, _ := CompileKeyExpr("user_id")
	if col, ok := bare.Column(); !ok || col != "user_id" {
		t.Errorf("Column() = %q, %v", col, ok)
	}
}

func TestKeyExpr_RejectsUnknownFunction(t *testing.T) {
	if _, err := CompileKeyExpr("md5(id)"); err == nil {
		t.Error("expected error for unsupported function")
	}
	if _, err := CompileKeyExpr("lower(a, b)"); err == nil {
		t.Error("expected error for wrong arity")
	}
}
