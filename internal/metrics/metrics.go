// Package metrics declares the Prometheus collectors exported by margin.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "margin"

var (
	// AnnotationsCreated counts annotations built from critique text or detectors.
	// Labels: type, source (ai, detector)
	AnnotationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "annotations_created_total",
		Help:      "Annotations created by type and source",
	}, []string{"type", "source"})

	// QuotesDropped counts quoted excerpts that could not be located.
	QuotesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotes_dropped_total",
		Help:      "Quoted excerpts that could not be located in the document",
	})

	// Transitions counts lifecycle transitions.
	// Labels: transition (applied, dismissed, auto_dismissed, restored)
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "annotation_transitions_total",
		Help:      "Annotation lifecycle transitions",
	}, []string{"transition"})

	// HistorySteps counts undo and redo replays.
	// Labels: direction (undo, redo)
	HistorySteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_steps_total",
		Help:      "Undo and redo steps replayed",
	}, []string{"direction"})

	// Streams counts AI streams by provider and outcome.
	// Labels: provider, outcome (ok, error, cancelled)
	Streams = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "streams_total",
		Help:      "AI critique streams by provider and outcome",
	}, []string{"provider", "outcome"})

	// StreamDuration measures full-response latency.
	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "stream_duration_seconds",
		Help:      "Time from request to complete AI response",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider"})

	// StoreWrites counts persistence writes.
	// Labels: backend (file, redis), status (ok, error)
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Persisted state writes",
	}, []string{"backend", "status"})

	// HTTPRequests counts API requests.
	// Labels: route, code
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP API requests by route and status code",
	}, []string{"route", "code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
