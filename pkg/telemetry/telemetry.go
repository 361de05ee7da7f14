// Package telemetry exposes prometheus collectors for store operations.
// The main binary serves them on /metrics; tests and library embedders can
// ignore them entirely.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_store_ops_total",
		Help: "Store operations by op and outcome.",
	}, []string{"op", "outcome"})

	opSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatdb_store_op_seconds",
		Help:    "Store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_store_conflicts_total",
		Help: "Conditional writes rejected by their predicate.",
	}, []string{"op"})

	partialWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_partial_writes_total",
		Help: "Multi-item writes that left some projections unwritten.",
	}, []string{"entity"})
)

// ObserveOp records one store call. outcome is "ok", "not_found",
// "conflict" or "error".
func ObserveOp(op, outcome string, start time.Time) {
	opsTotal.WithLabelValues(op, outcome).Inc()
	opSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncConflict counts a predicate rejection on a conditional write.
func IncConflict(op string) { conflictsTotal.WithLabelValues(op).Inc() }

// IncPartialWrite counts a best-effort multi-item write that did not fully
// apply. The items already written stay; there is no rollback.
func IncPartialWrite(entity string) { partialWrites.WithLabelValues(entity).Inc() }
