package manifest

import (
	"context"

	"github.com/partwise/partwise/internal/partition"
)

// SpecReader is the read-only interface used by the planner and the routing
// service. SQLiteCatalog and SnapshotCache both implement it.
type SpecReader interface {
	// GetPartitioningSpec returns the current snapshot of tableID's
	// partitioning, or an error matching errors.ErrNotPartitioned.
	GetPartitioningSpec(ctx context.Context, tableID string) (*partition.Spec, error)
}
