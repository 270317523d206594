package manifest

import (
	"context"
	"testing"

	"github.com/partwise/partwise/pkg/types"
)

func TestSpecHistory(t *testing.T) {
	catalog := newTestCatalog(t)
	history := NewSpecHistory(catalog)
	ctx := context.Background()

	if _, err := catalog.RegisterTable(ctx, eventsDef()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := catalog.AddRangePartition(ctx, "events", types.RangeDef{Name: "p2", Min: "30", Max: "40"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	versions, err := history.ListVersions(ctx, "events")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].Change != "table_registered" || versions[1].Change != "partitions_added" {
		t.Errorf("unexpected changes: %q, %q", versions[0].Change, versions[1].Change)
	}
	if len(versions[0].Def.Ranges) != 2 || len(versions[1].Def.Ranges) != 3 {
		t.Error("history should keep each version's directory")
	}

	added, err := history.AddedPartitions(ctx, "events", 1, 2)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(added) != 1 || added[0].Name != "p2" {
		t.Errorf("unexpected diff: %+v", added)
	}

	if _, err := history.GetSpecVersion(ctx, "events", 9); err == nil {
		t.Error("expected error for missing version")
	}
}
