// Package routing places rows into partitions, creating partitions on demand
// for tables that allow it.
package routing

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/metrics"
	"github.com/partwise/partwise/internal/observability"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/pkg/types"
)

// Route outcomes, as recorded in statistics and metrics.
const (
	OutcomeRouted  = "routed"
	OutcomeSpawned = "spawned"
	OutcomeGap     = "gap"
	OutcomeError   = "error"
)

// SnapshotSource serves snapshots and accepts newer ones. manifest.SnapshotCache
// implements it.
type SnapshotSource interface {
	manifest.SpecReader
	Put(spec *partition.Spec)
}

// Result is where a row was placed.
type Result struct {
	Table     string      `json:"table"`
	Version   int64       `json:"version"`
	Index     int         `json:"index"`
	Partition string      `json:"partition"`
	Key       interface{} `json:"key"`

	// Spawned is the number of partitions created to cover the row.
	Spawned int `json:"spawned"`
}

// Config configures a Service.
type Config struct {
	// MaxSpawn bounds the partitions created for one value.
	MaxSpawn int
}

// Service routes rows against the current snapshots.
type Service struct {
	source  SnapshotSource
	catalog manifest.Catalog
	cfg     Config
	logger  *zap.Logger
	stats   *observability.PruneStats

	mu      sync.Mutex
	routers map[string]*partition.Router
}

// NewService creates a routing service. catalog is used only to create
// partitions; it may be nil, in which case gaps are never filled.
func NewService(source SnapshotSource, catalog manifest.Catalog, cfg Config, logger *zap.Logger, stats *observability.PruneStats) *Service {
	if cfg.MaxSpawn <= 0 {
		cfg.MaxSpawn = manifest.DefaultMaxSpawn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:  source,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		stats:   stats,
		routers: make(map[string]*partition.Router),
	}
}

// Route places row into a partition of table. When no partition covers the
// row and the table allows it, partitions are created and the row is routed
// once more against the new snapshot.
func (s *Service) Route(ctx context.Context, table string, row types.Row) (*Result, error) {
	res, outcome, err := s.route(ctx, table, row)
	if err != nil {
		outcome = OutcomeError
		if errors.HasCode(err, errors.CodeNoPartition) {
			outcome = OutcomeGap
		}
	}
	metrics.RouteCounter.WithLabelValues(table, outcome).Inc()
	if s.stats != nil {
		s.stats.RecordRoute(table, outcome)
	}
	return res, err
}

func (s *Service) route(ctx context.Context, table string, row types.Row) (*Result, string, error) {
	router, err := s.router(ctx, table)
	if err != nil {
		return nil, "", err
	}
	r, err := router.RouteRow(row)
	if err != nil {
		return nil, "", err
	}
	if !r.Gap {
		return result(router.Spec(), r, 0), OutcomeRouted, nil
	}

	spec := router.Spec()
	if !spec.AutoCreate || s.catalog == nil {
		return nil, "", noPartition(spec, r.Key)
	}

	fresh, n, err := manifest.SpawnPartitionsForValue(ctx, s.catalog, table, r.Key, s.cfg.MaxSpawn)
	if err != nil {
		return nil, "", err
	}
	s.source.Put(fresh)
	if n > 0 {
		metrics.SpawnedPartitions.WithLabelValues(table).Add(float64(n))
		s.logger.Info("partitions created",
			zap.String("table", table),
			zap.Int("count", n),
			zap.Int64("version", fresh.Version),
			zap.String("key", fresh.KeyType.Format(r.Key)))
	}

	router, err = s.routerFor(fresh)
	if err != nil {
		return nil, "", err
	}
	r, err = router.RouteRow(row)
	if err != nil {
		return nil, "", err
	}
	if r.Gap {
		return nil, "", noPartition(fresh, r.Key)
	}
	return result(fresh, r, n), OutcomeSpawned, nil
}

func result(spec *partition.Spec, r partition.Route, spawned int) *Result {
	return &Result{
		Table:     spec.TableID,
		Version:   spec.Version,
		Index:     r.Index,
		Partition: r.Partition,
		Key:       r.Key,
		Spawned:   spawned,
	}
}

func noPartition(spec *partition.Spec, key interface{}) error {
	return errors.NewRouteError(errors.CodeNoPartition,
		fmt.Sprintf("no partition of %q covers key %s", spec.TableID, spec.KeyType.Format(key)))
}

// router returns a router over table's current snapshot.
func (s *Service) router(ctx context.Context, table string) (*partition.Router, error) {
	spec, err := s.source.GetPartitioningSpec(ctx, table)
	if err != nil {
		return nil, err
	}
	return s.routerFor(spec)
}

// routerFor reuses the router built for spec, or builds one. Routers are
// keyed by snapshot identity since snapshots are immutable.
func (s *Service) routerFor(spec *partition.Spec) (*partition.Router, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.routers[spec.TableID]; ok && r.Spec() == spec {
		return r, nil
	}
	r, err := partition.NewRouter(spec)
	if err != nil {
		return nil, err
	}
	s.routers[spec.TableID] = r
	return r, nil
}

// RouteBatch routes rows in order and groups them by partition name. It stops
// at the first row that cannot be placed.
func (s *Service) RouteBatch(ctx context.Context, table string, rows []types.Row) (map[string][]types.Row, error) {
	groups := make(map[string][]types.Row)
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.Route(ctx, table, row)
		if err != nil {
			return nil, fmt.Errorf("routing: row %d: %w", i, err)
		}
		groups[res.Partition] = append(groups[res.Partition], row)
	}
	return groups, nil
}
