// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedrop_dispatch_runs_total",
			Help: "Dispatch invocations by delivery mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	RecipientOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedrop_recipient_outcomes_total",
			Help: "Per-recipient results by delivery mode, status and failure reason",
		},
		[]string{"mode", "status", "reason"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicedrop_provider_call_duration_seconds",
			Help:    "Latency of calls to the voicemail provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	MediaCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedrop_media_cache_lookups_total",
			Help: "Media reference cache lookups by result",
		},
		[]string{"result"},
	)

	ActiveDispatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicedrop_active_dispatches",
			Help: "Dispatch runs currently holding a campaign guard",
		},
	)

	StaleGuardsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicedrop_stale_guards_released_total",
			Help: "Dispatch guards released by the sweeper",
		},
	)
)
