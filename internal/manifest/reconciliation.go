package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/partwise/partwise/internal/storage"
)

// ReconciliationReport compares the catalog with the exported snapshots.
type ReconciliationReport struct {
	// OrphanedSnapshots are snapshots of tables no longer in the catalog.
	OrphanedSnapshots []string
	// StaleTables are tables whose newest snapshot is older than the catalog,
	// or that were never exported.
	StaleTables []StaleTable
	// TotalTables is the number of catalog tables checked.
	TotalTables int
	// TotalSnapshots is the number of snapshot objects scanned.
	TotalSnapshots int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// StaleTable is a table whose exported state lags the catalog.
type StaleTable struct {
	TableID         string
	CatalogVersion  int64
	SnapshotVersion int64 // 0 when never exported
}

// HasIssues returns true if the report contains orphans or stale tables.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.OrphanedSnapshots) > 0 || len(r.StaleTables) > 0
}

// Reconcile checks consistency between the catalog and the snapshot store.
func Reconcile(ctx context.Context, catalog Catalog, store storage.ObjectStorage) (*ReconciliationReport, error) {
	report := &ReconciliationReport{RunAt: time.Now()}

	defs, err := catalog.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list tables: %w", err)
	}
	report.TotalTables = len(defs)

	objects, err := store.ListObjects(ctx, SnapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list snapshots: %w", err)
	}
	report.TotalSnapshots = len(objects)

	current := make(map[string]int64, len(defs))
	for _, d := range defs {
		current[d.TableID] = d.Version
	}

	exported := make(map[string]int64)
	for _, obj := range objects {
		tableID, version, ok := parseSnapshotPath(obj)
		if !ok {
			continue
		}
		if _, tracked := current[tableID]; !tracked {
			report.OrphanedSnapshots = append(report.OrphanedSnapshots, obj)
			continue
		}
		if version > exported[tableID] {
			exported[tableID] = version
		}
	}

	for _, d := range defs {
		if exported[d.TableID] < d.Version {
			report.StaleTables = append(report.StaleTables, StaleTable{
				TableID:         d.TableID,
				CatalogVersion:  d.Version,
				SnapshotVersion: exported[d.TableID],
			})
		}
	}
	return report, nil
}
