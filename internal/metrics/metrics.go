// Package metrics exposes Prometheus instrumentation for the trend
// engine: cache effectiveness, computation latency, and task outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trendpulse"

var (
	// CacheHitsTotal counts cache hits by tier.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits by tier.",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal counts cache misses by tier.
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses by tier.",
		},
		[]string{"tier"},
	)

	// ComputeDurationSeconds is metric computation latency per keyword.
	ComputeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Trend metric computation duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2.5, 10), // 5ms to ~47s
		},
	)

	// TasksTotal counts finished tasks by terminal state.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of finished recomputation tasks by outcome.",
		},
		[]string{"state"},
	)

	// TaskRetriesTotal counts retry transitions.
	TaskRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Total number of task retry transitions.",
		},
	)

	// TasksInFlight is the number of non-terminal tasks.
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently pending, running, or retrying.",
		},
	)
)
