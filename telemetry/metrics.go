// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	StartFailures   *prometheus.CounterVec // label: reason
	PollsTotal      *prometheus.CounterVec // label: outcome (ok|retryable|fatal|unknown)
	CommentsEmitted prometheus.Counter
	CommentsStored  prometheus.Counter
	SinkFailures    *prometheus.CounterVec // label: sink

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	ActiveSessions prometheus.Gauge
	SSEClients     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "livechat_sessions_started_total", Help: "Number of live chat sessions started"})
		SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{Name: "livechat_sessions_ended_total", Help: "Number of live chat sessions ended"})
		StartFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livechat_start_failures_total", Help: "Failed session starts by reason"}, []string{"reason"})
		PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livechat_polls_total", Help: "Continuation polls by outcome"}, []string{"outcome"})
		CommentsEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "livechat_comments_emitted_total", Help: "Comments emitted to listeners"})
		CommentsStored = promauto.NewCounter(prometheus.CounterOpts{Name: "livechat_comments_stored_total", Help: "Comments persisted to the database"})
		SinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livechat_sink_failures_total", Help: "Comment sink failures by sink"}, []string{"sink"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livechat_poll_duration_seconds", Help: "Continuation poll duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "livechat_active_sessions", Help: "Currently running live chat sessions"})
		SSEClients = promauto.NewGauge(prometheus.GaugeOpts{Name: "livechat_sse_clients", Help: "Connected SSE stream clients"})
	})
}

// The helpers below are no-ops until Init has run, so library users that
// never call Init pay nothing.

// IncSessionStarted records a started session.
func IncSessionStarted() {
	if SessionsStarted != nil {
		SessionsStarted.Inc()
		ActiveSessions.Inc()
	}
}

// IncSessionEnded records an ended session.
func IncSessionEnded() {
	if SessionsEnded != nil {
		SessionsEnded.Inc()
		ActiveSessions.Dec()
	}
}

// IncStartFailure records a failed start with a short reason label.
func IncStartFailure(reason string) {
	if StartFailures != nil {
		StartFailures.WithLabelValues(reason).Inc()
	}
}

// ObservePoll records one poll and its outcome.
func ObservePoll(d time.Duration, outcome string) {
	if PollsTotal != nil {
		PollsTotal.WithLabelValues(outcome).Inc()
		PollDuration.Observe(d.Seconds())
	}
}

// AddComments records n emitted comments.
func AddComments(n int) {
	if CommentsEmitted != nil && n > 0 {
		CommentsEmitted.Add(float64(n))
	}
}

// IncCommentStored records one persisted comment.
func IncCommentStored() {
	if CommentsStored != nil {
		CommentsStored.Inc()
	}
}

// IncSinkFailure records a failed delivery to the named sink.
func IncSinkFailure(sink string) {
	if SinkFailures != nil {
		SinkFailures.WithLabelValues(sink).Inc()
	}
}

// AddSSEClients adjusts the connected SSE client gauge.
func AddSSEClients(delta int) {
	if SSEClients != nil {
		SSEClients.Add(float64(delta))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
