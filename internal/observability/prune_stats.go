// Package observability tracks per-table pruning and routing statistics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PruneStats aggregates plan and route outcomes per table over a sliding
// window. It is safe for concurrent use.
type PruneStats struct {
	mu     sync.RWMutex
	tables map[string]*TableStats
	window time.Duration
}

// TableStats holds the statistics of one table.
type TableStats struct {
	Table    string
	LastSeen time.Time

	// Plans is the number of plans built.
	Plans int64
	// PartitionsTotal and PartitionsScanned sum N and the surviving partitions
	// over all plans.
	PartitionsTotal   int64
	PartitionsScanned int64
	// Rechecks counts lossy scan targets.
	Rechecks int64
	// Unpruned counts plans that kept every partition because of an unbound
	// placeholder.
	Unpruned int64

	// Routes maps a route outcome ("routed", "gap", "spawned", "error") to
	// its count.
	Routes map[string]int64
}

// PruningRatio returns the fraction of partitions eliminated across all plans.
func (s TableStats) PruningRatio() float64 {
	if s.PartitionsTotal == 0 {
		return 0
	}
	return float64(s.PartitionsTotal-s.PartitionsScanned) / float64(s.PartitionsTotal)
}

// PlanOutcome is what one plan reports.
type PlanOutcome struct {
	Total       int
	Scanned     int
	Rechecks    int
	FoundParams bool
}

// NewPruneStats creates a tracker that forgets tables idle for longer than
// window.
func NewPruneStats(window time.Duration) *PruneStats {
	return &PruneStats{
		tables: make(map[string]*TableStats),
		window: window,
	}
}

func (p *PruneStats) table(name string) *TableStats {
	s, ok := p.tables[name]
	if !ok {
		s = &TableStats{Table: name, Routes: make(map[string]int64)}
		p.tables[name] = s
	}
	s.LastSeen = time.Now()
	return s
}

// RecordPlan records one plan against table.
func (p *PruneStats) RecordPlan(table string, o PlanOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.table(table)
	s.Plans++
	s.PartitionsTotal += int64(o.Total)
	s.PartitionsScanned += int64(o.Scanned)
	s.Rechecks += int64(o.Rechecks)
	if o.FoundParams {
		s.Unpruned++
	}
}

// RecordRoute records one routing outcome against table.
func (p *PruneStats) RecordRoute(table, outcome string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table(table).Routes[outcome]++
}

// Get returns a copy of table's statistics.
func (p *PruneStats) Get(table string) (TableStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.tables[table]
	if !ok {
		return TableStats{}, false
	}
	return s.copy(), true
}

func (s *TableStats) copy() TableStats {
	c := *s
	c.Routes = make(map[string]int64, len(s.Routes))
	for k, v := range s.Routes {
		c.Routes[k] = v
	}
	return c
}

// GetTopTables returns the n most planned tables, busiest first.
func (p *PruneStats) GetTopTables(n int) []TableStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.tables) == 0 {
		return []TableStats{}
	}

	stats := make([]TableStats, 0, len(p.tables))
	for _, s := range p.tables {
		stats = append(stats, s.copy())
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Plans != stats[j].Plans {
			return stats[i].Plans > stats[j].Plans
		}
		return stats[i].Table < stats[j].Table
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes tables not seen within the window.
// This should be called periodically (e.g., every 5 minutes).
func (p *PruneStats) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := time.Now().Add(-p.window)
	for name, s := range p.tables {
		if s.LastSeen.Before(threshold) {
			delete(p.tables, name)
		}
	}
}
