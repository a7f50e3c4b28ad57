// Package metrics holds the Prometheus collectors for link operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// LinkOperations counts structural link operations by kind and result.
	LinkOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkorder_link_operations_total",
		Help: "Total number of link create/move/remove operations",
	}, []string{"op", "result"})

	LinkOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkorder_link_operation_duration_seconds",
		Help:    "Duration of link operations, including the group lock wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// SiblingsShifted counts sibling index rewrites caused by an operation.
	SiblingsShifted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkorder_siblings_shifted_total",
		Help: "Total number of sibling indexes rewritten",
	}, []string{"op"})

	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkorder_invariant_violations_total",
		Help: "Total number of index invariant violations detected",
	})

	SeedImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkorder_seed_imports_total",
		Help: "Total number of seed files imported",
	}, []string{"result"})
)

// ObserveOperation records one finished link operation.
func ObserveOperation(op string, start time.Time, shifted int, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	LinkOperations.WithLabelValues(op, result).Inc()
	LinkOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if shifted > 0 {
		SiblingsShifted.WithLabelValues(op).Add(float64(shifted))
	}
}
