package planner

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/observability"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/pkg/types"
)

// mockReader implements manifest.SpecReader for testing.
type mockReader struct {
	specs map[string]*partition.Spec
}

func (m *mockReader) GetPartitioningSpec(_ context.Context, tableID string) (*partition.Spec, error) {
	if s, ok := m.specs[tableID]; ok {
		return s, nil
	}
	return nil, errors.ErrNotPartitioned
}

func newMockReader(t *testing.T) *mockReader {
	t.Helper()
	spec, err := partition.FromDef(types.TableDef{
		TableID:  "events",
		Strategy: types.StrategyRange,
		KeyExpr:  "id",
		KeyKind:  types.KindInt,
		Version:  4,
		Ranges: []types.RangeDef{
			{Name: "p0", Min: "0", Max: "10"},
			{Name: "p1", Min: "20", Max: "30"},
			{Name: "p2", Min: "30", Max: "40"},
		},
	})
	if err != nil {
		t.Fatalf("failed to build spec: %v", err)
	}
	return &mockReader{specs: map[string]*partition.Spec{"events": spec}}
}

func TestPlanner_Plan(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		params      []interface{}
		targets     string
		gap         bool
		foundParams bool
	}{
		{"no where", "SELECT * FROM events", nil, "p0 p1 p2", false, false},
		{"range spanning a gap", "SELECT * FROM events WHERE id >= 5 AND id < 25", nil, "p0~ p1~", false, false},
		{"exact range", "SELECT * FROM events WHERE id >= 20 AND id < 40", nil, "p1 p2", false, false},
		{"point in gap", "SELECT * FROM events WHERE id = 15", nil, "", true, false},
		{"point", "SELECT * FROM events WHERE id = 33", nil, "p2~", false, false},
		{"unbound param", "SELECT * FROM events WHERE id = $1", nil, "p0~ p1~ p2~", false, true},
		{"bound param", "SELECT * FROM events e WHERE e.id = ?", []interface{}{int64(25)}, "p1~", false, false},
		{"other column", "SELECT * FROM events WHERE name = 'x'", nil, "p0~ p1~ p2~", false, false},
		{"in list", "SELECT * FROM events WHERE id IN (1, 35)", nil, "p0~ p2~", false, false},
	}

	p := NewPlanner(newMockReader(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Plan(context.Background(), tt.sql, tt.params)
			if err != nil {
				t.Fatalf("plan failed: %v", err)
			}
			if got := describeTargets(plan); got != tt.targets {
				t.Errorf("targets = %q, want %q", got, tt.targets)
			}
			if plan.Gap != tt.gap {
				t.Errorf("gap = %v, want %v", plan.Gap, tt.gap)
			}
			if plan.FoundParams != tt.foundParams {
				t.Errorf("foundParams = %v, want %v", plan.FoundParams, tt.foundParams)
			}
			if plan.Table != "events" || plan.Version != 4 || plan.TotalPartitions != 3 {
				t.Errorf("unexpected plan header: %s v%d n=%d", plan.Table, plan.Version, plan.TotalPartitions)
			}
		})
	}
}

func describeTargets(plan *Plan) string {
	parts := make([]string, len(plan.Targets))
	for i, tgt := range plan.Targets {
		parts[i] = tgt.Name
		if tgt.Recheck {
			parts[i] += "~"
		}
	}
	return strings.Join(parts, " ")
}

func TestPlanner_RatioAndBitmaps(t *testing.T) {
	stats := observability.NewPruneStats(0)
	p := NewPlanner(newMockReader(t), WithStats(stats))

	plan, err := p.Plan(context.Background(), "SELECT * FROM events WHERE id < 5 OR id >= 30", nil)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if plan.PruningRatio < 0.33 || plan.PruningRatio > 0.34 {
		t.Errorf("expected ratio 1/3, got %v", plan.PruningRatio)
	}
	if names := plan.PartitionNames(); len(names) != 2 || names[0] != "p0" || names[1] != "p2" {
		t.Errorf("unexpected names %v", names)
	}

	members, recheck := plan.Bitmaps()
	if !members.Test(0) || members.Test(1) || !members.Test(2) {
		t.Errorf("unexpected members %v", members)
	}
	if !recheck.Test(0) || recheck.Test(2) {
		t.Errorf("unexpected recheck set %v", recheck)
	}
	if plan.RecheckCount() != 1 {
		t.Errorf("expected 1 recheck, got %d", plan.RecheckCount())
	}

	s, ok := stats.Get("events")
	if !ok || s.Plans != 1 || s.PartitionsScanned != 2 || s.Rechecks != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPlanner_Errors(t *testing.T) {
	p := NewPlanner(newMockReader(t))
	ctx := context.Background()

	if _, err := p.Plan(ctx, "SELECT * FROM missing WHERE id = 1", nil); !stderrors.Is(err, errors.ErrNotPartitioned) {
		t.Errorf("expected ErrNotPartitioned, got %v", err)
	}
	if _, err := p.Plan(ctx, "SELECT * FROM", nil); !errors.HasCode(err, errors.CodeParseError) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
	if _, err := p.PlanStatement(ctx, nil, nil); !errors.HasCode(err, errors.CodeUnsupportedSyntax) {
		t.Errorf("expected UNSUPPORTED_SYNTAX, got %v", err)
	}
}
