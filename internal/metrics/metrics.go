// Package metrics provides Prometheus metrics for kindlecal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourceFetchTotal counts per-source resolution outcomes.
	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kindlecal",
			Name:      "source_fetch_total",
			Help:      "Calendar source resolutions by outcome",
		},
		[]string{"source", "status"},
	)

	// EntriesResolved observes how many entries a resolution produced.
	EntriesResolved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kindlecal",
			Name:      "entries_resolved",
			Help:      "Number of agenda entries resolved for today",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	// RenderTotal counts renders by trigger and status.
	RenderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kindlecal",
			Name:      "render_total",
			Help:      "Total number of image renders",
		},
		[]string{"trigger", "status"},
	)

	// RenderDuration measures the full resolve+layout+encode pipeline.
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kindlecal",
			Name:      "render_duration_seconds",
			Help:      "Duration of image renders in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)
)

// Source outcome labels.
const (
	StatusOK         = "ok"
	StatusFetchError = "fetch_error"
	StatusParseError = "parse_error"
)

// RecordSource records the outcome of one calendar source.
func RecordSource(source, status string) {
	SourceFetchTotal.WithLabelValues(source, status).Inc()
}

// RecordRender records one render.
func RecordRender(trigger, status string, duration float64) {
	RenderTotal.WithLabelValues(trigger, status).Inc()
	RenderDuration.WithLabelValues(trigger).Observe(duration)
}
