// Package metrics exposes Prometheus collectors for the query workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "datachat"

var (
	// TurnsTotal counts completed turns by terminal outcome
	// (answered, irrelevant, gave_up, error).
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed turns by outcome",
		},
		[]string{"outcome"},
	)

	// OracleRequestsTotal counts model calls by model name and status.
	OracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "Total number of language model calls",
		},
		[]string{"model", "status"},
	)

	// OracleRequestDuration observes model call latency.
	OracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_request_duration_seconds",
			Help:      "Language model call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// QueryAttempts observes how many execution attempts a turn needed before
	// reaching a terminal node.
	QueryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_attempts",
			Help:      "Query execution attempts per turn",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7},
		},
	)
)
