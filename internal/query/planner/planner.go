// Package planner turns SELECT statements into partition scan plans.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/metrics"
	"github.com/partwise/partwise/internal/observability"
	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/prune"
	"github.com/partwise/partwise/internal/query/parser"
)

// Plan represents a plan for scanning one partitioned table.
type Plan struct {
	// Statement is the parsed SQL statement.
	Statement *parser.SelectStatement `json:"-"`

	// Table is the FROM table and Version the snapshot version planned
	// against.
	Table   string `json:"table"`
	Version int64  `json:"version"`

	// Targets lists the partitions to scan in directory order.
	Targets []ScanTarget `json:"targets"`

	// Selectivity estimates the fraction of the table's rows retained.
	Selectivity float64 `json:"selectivity"`

	// Gap is set when a point lookup fell between partitions.
	Gap bool `json:"gap"`

	// FoundParams is set when an unbound placeholder kept partitions that a
	// bound value could prune.
	FoundParams bool `json:"found_params"`

	// TotalPartitions is the number of partitions before pruning.
	TotalPartitions int `json:"total_partitions"`

	// PruningRatio is the ratio of pruned partitions (0.0 to 1.0).
	PruningRatio float64 `json:"pruning_ratio"`

	// Node is the resolved WHERE clause.
	Node *prune.WrapperNode `json:"-"`

	spec   *partition.Spec
	params []interface{}
}

// PartitionNames returns the names of the partitions to scan.
func (p *Plan) PartitionNames() []string {
	names := make([]string, len(p.Targets))
	for i, t := range p.Targets {
		names[i] = t.Name
	}
	return names
}

// RecheckCount returns the number of targets that need the WHERE clause
// re-evaluated.
func (p *Plan) RecheckCount() int {
	n := 0
	for _, t := range p.Targets {
		if t.Recheck {
			n++
		}
	}
	return n
}

// Bitmaps returns the targets as a bitset over partition indices, and the
// subset that needs a recheck.
func (p *Plan) Bitmaps() (members, recheck *bitset.BitSet) {
	return p.Node.Ranges.Bitmap()
}

// Planner generates plans against the current partitioning snapshots.
type Planner struct {
	reader manifest.SpecReader
	logger *zap.Logger
	stats  *observability.PruneStats
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// WithStats records every plan into stats.
func WithStats(stats *observability.PruneStats) Option {
	return func(p *Planner) { p.stats = stats }
}

// NewPlanner creates a new planner reading snapshots from reader.
func NewPlanner(reader manifest.SpecReader, opts ...Option) *Planner {
	p := &Planner{reader: reader, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan parses sql, which must be a SELECT, and plans it. params binds the
// statement's placeholders in order.
func (p *Planner) Plan(ctx context.Context, sql string, params []interface{}) (*Plan, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeParseError, "planner: parse", err)
	}
	sel, ok := stmt.(*parser.SelectStatement)
	if !ok {
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "planner: only SELECT statements can be planned")
	}
	return p.PlanStatement(ctx, sel, params)
}

// PlanStatement plans an already parsed SELECT statement.
func (p *Planner) PlanStatement(ctx context.Context, stmt *parser.SelectStatement, params []interface{}) (*Plan, error) {
	if stmt == nil || stmt.From == nil {
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "planner: statement has no FROM table")
	}
	table := stmt.From.Name
	start := time.Now()

	plan, err := p.plan(ctx, stmt, params)
	metrics.PlanCounter.WithLabelValues(table, metrics.ResultLabel(err)).Inc()
	if err != nil {
		p.logger.Debug("plan failed", zap.String("table", table), zap.Error(err))
		return nil, err
	}
	metrics.PlanDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
	metrics.PrunedPartitions.WithLabelValues(table).Observe(plan.PruningRatio)

	if p.stats != nil {
		p.stats.RecordPlan(table, observability.PlanOutcome{
			Total:       plan.TotalPartitions,
			Scanned:     len(plan.Targets),
			Rechecks:    plan.RecheckCount(),
			FoundParams: plan.FoundParams,
		})
	}
	p.logger.Debug("planned",
		zap.String("table", table),
		zap.Int64("version", plan.Version),
		zap.Int("targets", len(plan.Targets)),
		zap.Int("total", plan.TotalPartitions),
		zap.Float64("selectivity", plan.Selectivity))
	return plan, nil
}

func (p *Planner) plan(ctx context.Context, stmt *parser.SelectStatement, params []interface{}) (*Plan, error) {
	spec, err := p.reader.GetPartitioningSpec(ctx, stmt.From.Name)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	res, err := Prune(spec, stmt.Where, params)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	return &Plan{
		Statement:       stmt,
		Table:           spec.TableID,
		Version:         spec.Version,
		Targets:         res.Targets,
		Selectivity:     res.Node.Selectivity,
		Gap:             res.Node.FoundGap,
		FoundParams:     res.Node.FoundParams,
		TotalPartitions: res.TotalPartitions,
		PruningRatio:    res.PruningRatio,
		Node:            res.Node,
		spec:            spec,
		params:          params,
	}, nil
}
