// ABOUTME: Prometheus metrics for Google Calendar imports
// ABOUTME: Counts runs, per-event actions, token refreshes, and cursor fallbacks
package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayplan_google_import_runs_total",
		Help: "Google Calendar import runs by outcome",
	}, []string{"outcome"})

	importEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayplan_google_import_events_total",
		Help: "Google events processed by resolved action",
	}, []string{"action"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayplan_google_token_refresh_total",
		Help: "Access token refresh attempts by outcome",
	}, []string{"outcome"})

	cursorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayplan_google_cursor_fallback_total",
		Help: "Incremental fetches that fell back to a full fetch",
	})

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dayplan_google_import_duration_seconds",
		Help:    "Duration of Google Calendar import runs",
		Buckets: prometheus.DefBuckets,
	})
)
