package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as the "stage" label of remote call metrics.
const (
	StageTranscribe = "transcribe"
	StageDialogue   = "dialogue"
	StageSynthesize = "synthesize"
)

// Metrics contains all Prometheus metrics for the voice assistant.
type Metrics struct {
	registry *prometheus.Registry

	// Remote call metrics
	RemoteCalls        *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec

	// Turn metrics
	TurnsCompleted prometheus.Counter
	TurnsSkipped   *prometheus.CounterVec
	TurnsFailed    *prometheus.CounterVec

	// Session metrics
	ActiveSessions prometheus.Gauge
	Resets         prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_remote_calls_total",
			Help: "Total number of calls to remote speech and language services",
		}, []string{"stage", "provider", "outcome"}),
		RemoteCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebot_remote_call_duration_seconds",
			Help:    "Latency of calls to remote speech and language services",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage", "provider"}),

		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_turns_completed_total",
			Help: "Total number of completed question/answer turns",
		}),
		TurnsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_turns_skipped_total",
			Help: "Render cycles that did not process a recording",
		}, []string{"reason"}),
		TurnsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_turns_failed_total",
			Help: "Render cycles terminated by a remote error",
		}, []string{"stage"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicebot_active_sessions",
			Help: "Current number of live assistant sessions",
		}),
		Resets: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebot_session_resets_total",
			Help: "Total number of conversation resets",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebot_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRemoteCall records the outcome and latency of one remote call.
// A nil receiver is a no-op so services can run without metrics.
func (m *Metrics) ObserveRemoteCall(stage, provider string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.RemoteCalls.WithLabelValues(stage, provider, outcome).Inc()
	m.RemoteCallDuration.WithLabelValues(stage, provider).Observe(time.Since(started).Seconds())
}

// TurnCompleted counts a fully processed turn.
func (m *Metrics) TurnCompleted() {
	if m == nil {
		return
	}
	m.TurnsCompleted.Inc()
}

// TurnSkipped counts a render cycle that short-circuited.
func (m *Metrics) TurnSkipped(reason string) {
	if m == nil {
		return
	}
	m.TurnsSkipped.WithLabelValues(reason).Inc()
}

// TurnFailed counts a render cycle terminated at stage.
func (m *Metrics) TurnFailed(stage string) {
	if m == nil {
		return
	}
	m.TurnsFailed.WithLabelValues(stage).Inc()
}

// SessionOpened increments the live session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the live session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// SessionReset counts a conversation reset.
func (m *Metrics) SessionReset() {
	if m == nil {
		return
	}
	m.Resets.Inc()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
