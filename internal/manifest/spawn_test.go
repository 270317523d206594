package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/pkg/types"
)

func autoDef() types.TableDef {
	def := eventsDef()
	def.Ranges = []types.RangeDef{{Name: "p0", Min: "0", Max: "10"}}
	def.AutoCreate = true
	def.Interval = "10"
	return def
}

func TestSpawn_AppendsAfterLast(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()
	if _, err := catalog.RegisterTable(ctx, autoDef()); err != nil {
		t.Fatalf("failed to register table: %v", err)
	}

	spec, n, err := SpawnPartitionsForValue(ctx, catalog, "events", int64(35), 0)
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if n != 3 || spec.NumPartitions() != 4 {
		t.Fatalf("expected 3 new partitions, got n=%d total=%d", n, spec.NumPartitions())
	}
	last := spec.Ranges[3]
	if last.Min.Value != int64(30) || last.Max.Value != int64(40) {
		t.Errorf("last partition is [%v, %v), want [30, 40)", last.Min.Value, last.Max.Value)
	}

	// Covered values spawn nothing.
	_, n, err = SpawnPartitionsForValue(ctx, catalog, "events", int64(12), 0)
	if err != nil || n != 0 {
		t.Errorf("covered value: n=%d err=%v", n, err)
	}
}

func TestSpawn_PrependsBeforeFirst(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()
	if _, err := catalog.RegisterTable(ctx, autoDef()); err != nil {
		t.Fatalf("failed to register table: %v", err)
	}

	spec, n, err := SpawnPartitionsForValue(ctx, catalog, "events", int64(-15), 0)
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 new partitions, got %d", n)
	}
	if spec.Ranges[0].Min.Value != int64(-20) || spec.Ranges[1].Min.Value != int64(-10) || spec.PartitionName(2) != "p0" {
		t.Errorf("unexpected directory after prepend: %+v", spec.Def().Ranges)
	}
}

func TestSpawn_Refusals(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	gapped := autoDef()
	gapped.Ranges = append(gapped.Ranges, types.RangeDef{Name: "p1", Min: "20", Max: "30"})
	if _, err := catalog.RegisterTable(ctx, gapped); err != nil {
		t.Fatalf("failed to register table: %v", err)
	}
	if _, _, err := SpawnPartitionsForValue(ctx, catalog, "events", int64(15), 0); !errors.HasCode(err, errors.CodeSpawnNotAllowed) {
		t.Errorf("interior gap: expected SPAWN_NOT_ALLOWED, got %v", err)
	}
	if _, _, err := SpawnPartitionsForValue(ctx, catalog, "events", int64(1000), 4); !errors.HasCode(err, errors.CodeSpawnNotAllowed) {
		t.Errorf("too far: expected SPAWN_NOT_ALLOWED, got %v", err)
	}

	manual := eventsDef()
	manual.TableID = "manual"
	if _, err := catalog.RegisterTable(ctx, manual); err != nil {
		t.Fatalf("failed to register table: %v", err)
	}
	if _, _, err := SpawnPartitionsForValue(ctx, catalog, "manual", int64(40), 0); !errors.HasCode(err, errors.CodeSpawnNotAllowed) {
		t.Errorf("disabled: expected SPAWN_NOT_ALLOWED, got %v", err)
	}

	spec, _ := catalog.GetPartitioningSpec(ctx, "events")
	if spec.Version != 1 {
		t.Errorf("refused spawns must not bump the version, got %d", spec.Version)
	}
}

func TestSpawn_TimestampEmptyDirectory(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()
	_, err := catalog.RegisterTable(ctx, types.TableDef{
		TableID:    "metrics",
		Strategy:   types.StrategyRange,
		KeyExpr:    "ts",
		KeyKind:    types.KindTimestamp,
		AutoCreate: true,
		Interval:   "24h",
	})
	if err != nil {
		t.Fatalf("failed to register table: %v", err)
	}

	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	spec, n, err := SpawnPartitionsForValue(ctx, catalog, "metrics", ts, 0)
	if err != nil || n != 1 {
		t.Fatalf("spawn: n=%d err=%v", n, err)
	}
	lo := spec.Ranges[0].Min.Value.(time.Time)
	if !lo.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("partition not aligned to the interval: %v", lo)
	}
}

func TestStepper_AlignNegative(t *testing.T) {
	st, err := newStepper(types.KindInt, "10")
	if err != nil {
		t.Fatalf("newStepper: %v", err)
	}
	for v, want := range map[int64]int64{-15: -20, -10: -10, 0: 0, 7: 0, 10: 10} {
		if got := st.align(v); got != want {
			t.Errorf("align(%d) = %v, want %d", v, got, want)
		}
	}
	if _, err := newStepper(types.KindText, "10"); err == nil {
		t.Error("text keys cannot spawn")
	}
	if _, err := newStepper(types.KindInt, "-1"); err == nil {
		t.Error("negative interval must be rejected")
	}
}
