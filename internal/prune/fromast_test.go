package prune

import (
	"testing"

	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/query/parser"
	"github.com/partwise/partwise/internal/rangeset"
)

func lowerSQL(t *testing.T, key, where string) Expr {
	t.Helper()
	k, err := partition.CompileKeyExpr(key)
	if err != nil {
		t.Fatalf("CompileKeyExpr(%q): %v", key, err)
	}
	expr, err := parser.ParseExpr(where)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", where, err)
	}
	return FromAST(expr, k)
}

func TestFromAST(t *testing.T) {
	tests := []struct {
		where string
		want  string
	}{
		{"key = 5", "key = 5"},
		{"5 < key", "key > 5"},
		{"key <> 3", "NOT key = 3"},
		{"key != 3", "NOT key = 3"},
		{"key >= 5 AND key < 25", "(key >= 5 AND key < 25)"},
		{"key = 1 OR (key = 2 OR key = 3)", "(key = 1 OR key = 2 OR key = 3)"},
		{"key IN (1, 2, $1)", "key IN (1, 2, $1)"},
		{"key NOT IN (1, 2)", "NOT key IN (1, 2)"},
		{"key BETWEEN 1 AND 9", "(key >= 1 AND key <= 9)"},
		{"key NOT BETWEEN 1 AND 9", "NOT (key >= 1 AND key <= 9)"},
		{"key IS NOT NULL", "key IS NOT NULL"},
		{"key = ?", "key = $1"},
		{"key < lower_bound", "key < row.lower_bound"},
		{"t.key = 'x'", "key = 'x'"},
		{"NOT (key = 1)", "NOT key = 1"},
		{"TRUE", "TRUE"},
		{"FALSE", "FALSE"},
		{"other = 1", "<(other = 1)>"},
		{"key = key", "<(key = key)>"},
		{"key + 1 = 5", "<((key + 1) = 5)>"},
	}

	for _, tt := range tests {
		got := lowerSQL(t, "key", tt.where)
		if got.String() != tt.want {
			t.Errorf("%q: got %s, want %s", tt.where, got, tt.want)
		}
	}
}

func TestFromAST_ExpressionKey(t *testing.T) {
	got := lowerSQL(t, "account_id / 1000", "account_id / 1000 = 7 AND region = 'eu'")
	and, ok := got.(*And)
	if !ok || len(and.Args) != 2 {
		t.Fatalf("expected a two-way AND, got %s", got)
	}
	if _, ok := and.Args[0].(*Compare); !ok {
		t.Errorf("key expression comparison should lower to Compare, got %s", and.Args[0])
	}
	if _, ok := and.Args[1].(*Opaque); !ok {
		t.Errorf("unrelated conjunct should be opaque, got %s", and.Args[1])
	}
}

func TestFromAST_NilWhereIsTrue(t *testing.T) {
	k, _ := partition.CompileKeyExpr("key")
	if got := FromAST(nil, k); got.String() != "TRUE" {
		t.Errorf("got %s", got)
	}
}

func TestFromAST_ResolvesEndToEnd(t *testing.T) {
	spec := gapped(t)
	expr, err := parser.ParseExpr("key >= 5 AND key < 25 AND name LIKE 'a%'")
	if err != nil {
		t.Fatalf("ParseExpr: %v", err)
	}
	node := resolve(t, FromAST(expr, spec.KeyExpr), &Context{Spec: spec})
	if !node.Ranges.Equal(rangeset.Make(0, 1, true)) {
		t.Errorf("got %s", node.Ranges)
	}
}
