package partition

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/pkg/types"
)

func TestFromDef_Invalid(t *testing.T) {
	base := func() types.TableDef {
		return types.TableDef{
			TableID:  "events",
			Strategy: types.StrategyRange,
			KeyExpr:  "id",
			KeyKind:  types.KindInt,
			Ranges: []types.RangeDef{
				{Name: "p0", Min: "0", Max: "10"},
				{Name: "p1", Min: "10", Max: "20"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*types.TableDef)
		errText string
	}{
		{"empty table id", func(d *types.TableDef) { d.TableID = "" }, "table id"},
		{"bad strategy", func(d *types.TableDef) { d.Strategy = "list" }, "strategy"},
		{"bad key kind", func(d *types.TableDef) { d.KeyKind = "uuid" }, "key kind"},
		{"empty key expr", func(d *types.TableDef) { d.KeyExpr = "" }, "key expression"},
		{"key expr without column", func(d *types.TableDef) { d.KeyExpr = "1 + 2" }, "no column"},
		{"key expr with comparison", func(d *types.TableDef) { d.KeyExpr = "id > 1" }, "not allowed"},
		{"unparsable bound", func(d *types.TableDef) { d.Ranges[0].Max = "ten" }, "max"},
		{"overlap", func(d *types.TableDef) { d.Ranges[1].Min = "5" }, "overlaps"},
		{"out of order", func(d *types.TableDef) {
			d.Ranges[0], d.Ranges[1] = d.Ranges[1], d.Ranges[0]
		}, "overlaps"},
		{"empty range", func(d *types.TableDef) { d.Ranges[0].Max = "0" }, "min must be below max"},
		{"duplicate name", func(d *types.TableDef) { d.Ranges[1].Name = "p0" }, "duplicate"},
		{"interior unbounded", func(d *types.TableDef) { d.Ranges[0].Max = "" }, "unbounded above"},
		{"zero hash partitions", func(d *types.TableDef) {
			d.Strategy = types.StrategyHash
			d.Ranges = nil
		}, "must be > 0"},
		{"hash with ranges", func(d *types.TableDef) {
			d.Strategy = types.StrategyHash
			d.HashPartitions = 2
		}, "must not list range partitions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(&def)
			_, err := FromDef(def)
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.ErrInvalidSpec) {
				t.Errorf("expected INVALID_SPEC, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error %q does not mention %q", err, tt.errText)
			}
		})
	}
}

func TestFromDef_GapsAreAllowed(t *testing.T) {
	spec := gappedSpec(t)
	if spec.NumPartitions() != 2 {
		t.Errorf("expected 2 partitions, got %d", spec.NumPartitions())
	}
}

func TestCheck_CollectsEveryProblem(t *testing.T) {
	key, _ := CompileKeyExpr("id")
	spec := &Spec{
		TableID:  "t",
		Strategy: types.StrategyRange,
		KeyExpr:  key,
		KeyType:  types.IntKey{},
		Ranges: []RangeEntry{
			{Min: Finite(int64(5)), Max: Finite(int64(1)), Name: "", Index: 0},
			{Min: NegInf, Max: Finite(int64(9)), Name: "b", Index: 3},
		},
	}

	errs := Check(spec)
	if len(errs) < 4 {
		t.Errorf("expected at least 4 problems, got %d: %v", len(errs), errs)
	}
}

func TestDefRoundTrip(t *testing.T) {
	def := types.TableDef{
		TableID:    "metrics",
		Strategy:   types.StrategyRange,
		KeyExpr:    "ts",
		KeyKind:    types.KindTimestamp,
		AutoCreate: true,
		Interval:   "24h",
		Version:    3,
		Ranges: []types.RangeDef{
			{Name: "old", Max: "2026-01-01T00:00:00Z"},
			{Name: "jan", Min: "2026-01-01T00:00:00Z", Max: "2026-02-01T00:00:00Z"},
		},
	}
	spec := mustSpec(t, def)

	back := spec.Def()
	if back.TableID != def.TableID || back.KeyExpr != def.KeyExpr || back.Version != 3 || !back.AutoCreate {
		t.Errorf("unexpected def %+v", back)
	}
	if len(back.Ranges) != 2 || back.Ranges[0].Min != "" || back.Ranges[1].Max != "2026-02-01T00:00:00Z" {
		t.Errorf("unexpected ranges %+v", back.Ranges)
	}
	if _, err := FromDef(back); err != nil {
		t.Errorf("round-tripped def is invalid: %v", err)
	}
}
