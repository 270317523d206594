// Package metrics defines the prometheus collectors of partwise.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label names.
const (
	LblTable   = "table"
	LblResult  = "result"
	LblOutcome = "outcome"
	LblChange  = "change"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics for planning and routing.
var (
	PlanCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partwise",
			Subsystem: "planner",
			Name:      "plans_total",
			Help:      "Counter of plans built.",
		}, []string{LblTable, LblResult})

	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partwise",
			Subsystem: "planner",
			Name:      "plan_duration_seconds",
			Help:      "Bucketed histogram of plan time (s).",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20), // 10us ~ 5s
		}, []string{LblTable})

	PrunedPartitions = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partwise",
			Subsystem: "planner",
			Name:      "pruning_ratio",
			Help:      "Fraction of partitions eliminated per plan.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{LblTable})

	RouteCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partwise",
			Subsystem: "router",
			Name:      "routes_total",
			Help:      "Counter of routed rows by outcome.",
		}, []string{LblTable, LblOutcome})

	SpawnedPartitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partwise",
			Subsystem: "catalog",
			Name:      "spawned_partitions_total",
			Help:      "Counter of partitions created on demand.",
		}, []string{LblTable})

	CatalogChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partwise",
			Subsystem: "catalog",
			Name:      "changes_total",
			Help:      "Counter of committed catalog changes.",
		}, []string{LblChange})

	CachedSnapshots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "partwise",
			Subsystem: "cache",
			Name:      "snapshots",
			Help:      "Gauge of cached table snapshots.",
		})
)

// Register registers every collector with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		PlanCounter,
		PlanDuration,
		PrunedPartitions,
		RouteCounter,
		SpawnedPartitions,
		CatalogChanges,
		CachedSnapshots,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ResultLabel returns ResultOK for a nil error and ResultError otherwise.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
