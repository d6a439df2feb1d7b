// Package metrics exposes Prometheus instrumentation for the call engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Call lifecycle
	CallsActive  prometheus.Gauge
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec

	// Conversation turns
	TurnsTotal    *prometheus.CounterVec
	TurnLatency   prometheus.Histogram
	Interruptions prometheus.Counter

	// Audio
	StreamedBytesTotal prometheus.Counter
	InboundBytesTotal  prometheus.Counter

	// Recording
	RecordingFinalizeDuration prometheus.Histogram

	// Errors
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sonicprism"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of active calls",
		},
	)

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of calls by final status",
		},
		[]string{"status"},
	)

	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"direction"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total conversation turns by response kind",
		},
		[]string{"kind"},
	)

	turnLatency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from completed utterance to response fully streamed",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	interruptions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Total barge-in interruptions",
		},
	)

	streamedBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamed_bytes_total",
			Help:      "Total outbound audio bytes streamed",
		},
	)

	inboundBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_bytes_total",
			Help:      "Total inbound audio bytes received",
		},
	)

	recordingFinalizeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_finalize_duration_seconds",
			Help:      "Time to merge and encode a call recording",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors by component and type",
		},
		[]string{"component", "error_type"},
	)

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		turnsTotal,
		turnLatency,
		interruptions,
		streamedBytesTotal,
		inboundBytesTotal,
		recordingFinalizeDuration,
		errorsTotal,
	)

	return &Metrics{
		registry:                  registry,
		CallsActive:               callsActive,
		CallsTotal:                callsTotal,
		CallDuration:              callDuration,
		TurnsTotal:                turnsTotal,
		TurnLatency:               turnLatency,
		Interruptions:             interruptions,
		StreamedBytesTotal:        streamedBytesTotal,
		InboundBytesTotal:         inboundBytesTotal,
		RecordingFinalizeDuration: recordingFinalizeDuration,
		ErrorsTotal:               errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCallStart records a new call starting.
func (m *Metrics) RecordCallStart() {
	m.CallsActive.Inc()
}

// RecordCallEnd records a call ending with its final status.
func (m *Metrics) RecordCallEnd(status, direction string, duration time.Duration) {
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(status).Inc()
	m.CallDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordTurn records one completed conversation turn.
func (m *Metrics) RecordTurn(kind string, latency time.Duration) {
	m.TurnsTotal.WithLabelValues(kind).Inc()
	m.TurnLatency.Observe(latency.Seconds())
}

// RecordInterruption records a barge-in.
func (m *Metrics) RecordInterruption() {
	m.Interruptions.Inc()
}

// RecordStreamedBytes records outbound audio volume.
func (m *Metrics) RecordStreamedBytes(n int) {
	if n > 0 {
		m.StreamedBytesTotal.Add(float64(n))
	}
}

// RecordInboundBytes records inbound audio volume.
func (m *Metrics) RecordInboundBytes(n int) {
	if n > 0 {
		m.InboundBytesTotal.Add(float64(n))
	}
}

// RecordFinalize records a recording finalization.
func (m *Metrics) RecordFinalize(duration time.Duration) {
	m.RecordingFinalizeDuration.Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
