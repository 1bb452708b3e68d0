// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "infofluencer"

var (
	// HTTPRequestsTotal counts inbound API requests by route pattern.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks inbound request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"method", "route"},
	)

	// ReportFetchTotal counts report fetches by outcome.
	ReportFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "fetch_total",
			Help:      "Total number of provider report fetches by outcome",
		},
		[]string{"provider", "report_type", "outcome"},
	)

	// ReportFetchDuration tracks provider call plus materialization time.
	ReportFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of report fetch and materialization in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"provider", "report_type"},
	)

	// RowsMaterialized counts rows written by the materializer.
	RowsMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "rows_materialized_total",
			Help:      "Total number of report rows written",
		},
		[]string{"provider", "report_type"},
	)

	// TokenRefreshTotal counts provider token refreshes by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "token_refresh_total",
			Help:      "Total number of provider token refresh attempts",
		},
		[]string{"provider", "outcome"},
	)

	// OAuthCallbacksTotal counts OAuth callbacks by outcome.
	OAuthCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "callbacks_total",
			Help:      "Total number of OAuth callbacks by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// BreakerStateChanges counts circuit breaker transitions.
	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "to"},
	)
)
