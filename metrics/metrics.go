// Package metrics defines the Prometheus collectors for a consumer group
// instance and an HTTP server for scraping them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GroupMetrics holds metrics for consumer group coordination and consumption.
type GroupMetrics struct {
	// RebalancesTotal counts rebalance runs by outcome (success, failure).
	RebalancesTotal *prometheus.CounterVec

	// RebalanceDuration tracks how long rebalance runs take.
	RebalanceDuration prometheus.Histogram

	// ClaimedPartitions is the number of partitions currently held.
	ClaimedPartitions prometheus.Gauge

	// FetchesTotal counts fetch checkouts by result (messages, empty, unclaimed).
	FetchesTotal *prometheus.CounterVec

	// MessagesTotal counts messages delivered to user callbacks.
	MessagesTotal prometheus.Counter

	// CommitsTotal counts offset commits by status (success, failure).
	CommitsTotal *prometheus.CounterVec

	// CoordinatorLatency tracks coordinator operation latencies broken down
	// by operation and status. Labels: operation (create, get, set, delete,
	// children, exists), status (success, failure).
	CoordinatorLatency *prometheus.HistogramVec
}

// Fetch result label values.
const (
	FetchMessages  = "messages"
	FetchEmpty     = "empty"
	FetchUnclaimed = "unclaimed"
)

// DefaultCoordinatorLatencyBuckets are latency buckets for coordinator
// operations, which are typically sub-ms to tens of ms.
var DefaultCoordinatorLatencyBuckets = []float64{
	0.0005, // 0.5ms
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.025,  // 25ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.25,   // 250ms
	0.5,    // 500ms
	1.0,    // 1s
	2.5,    // 2.5s
	5.0,    // 5s
}

// NewGroupMetrics creates and registers group metrics with the default
// Prometheus registry.
func NewGroupMetrics() *GroupMetrics {
	return NewGroupMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewGroupMetricsWithRegistry creates group metrics registered with a
// custom registerer. Useful for testing.
func NewGroupMetricsWithRegistry(reg prometheus.Registerer) *GroupMetrics {
	with := promauto.With(reg)

	return &GroupMetrics{
		RebalancesTotal: with.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "covey",
				Subsystem: "group",
				Name:      "rebalances_total",
				Help:      "Total number of rebalance runs, broken down by outcome.",
			},
			[]string{"status"},
		),
		RebalanceDuration: with.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "covey",
				Subsystem: "group",
				Name:      "rebalance_duration_seconds",
				Help:      "Duration of rebalance runs in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ClaimedPartitions: with.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "covey",
				Subsystem: "group",
				Name:      "claimed_partitions",
				Help:      "Number of partitions currently claimed by this member.",
			},
		),
		FetchesTotal: with.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "covey",
				Subsystem: "group",
				Name:      "fetches_total",
				Help:      "Total number of fetch checkouts, broken down by result.",
			},
			[]string{"result"},
		),
		MessagesTotal: with.NewCounter(
			prometheus.CounterOpts{
				Namespace: "covey",
				Subsystem: "group",
				Name:      "messages_total",
				Help:      "Total number of messages delivered to user callbacks.",
			},
		),
		CommitsTotal: with.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "covey",
				Subsystem: "group",
				Name:      "commits_total",
				Help:      "Total number of offset commits, broken down by status.",
			},
			[]string{"status"},
		),
		CoordinatorLatency: with.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "covey",
				Subsystem: "coordinator",
				Name:      "operation_latency_seconds",
				Help:      "Coordinator operation latency in seconds, broken down by operation and status.",
				Buckets:   DefaultCoordinatorLatencyBuckets,
			},
			[]string{"operation", "status"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordRebalance records one rebalance run.
func (m *GroupMetrics) RecordRebalance(durationSeconds float64, success bool) {
	m.RebalancesTotal.WithLabelValues(statusLabel(success)).Inc()
	m.RebalanceDuration.Observe(durationSeconds)
}

// SetClaimed records the current number of claimed partitions.
func (m *GroupMetrics) SetClaimed(n int) {
	m.ClaimedPartitions.Set(float64(n))
}

// RecordFetch records one fetch checkout and the messages it delivered.
func (m *GroupMetrics) RecordFetch(result string, messages int) {
	m.FetchesTotal.WithLabelValues(result).Inc()
	if messages > 0 {
		m.MessagesTotal.Add(float64(messages))
	}
}

// RecordCommit records one offset commit.
func (m *GroupMetrics) RecordCommit(success bool) {
	m.CommitsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordOp implements coordinator.MetricsRecorder.
func (m *GroupMetrics) RecordOp(op string, durationSeconds float64, success bool) {
	m.CoordinatorLatency.WithLabelValues(op, statusLabel(success)).Observe(durationSeconds)
}
