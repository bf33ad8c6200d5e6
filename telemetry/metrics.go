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
	PollCycles    prometheus.Counter
	PollErrors    *prometheus.CounterVec
	EventsEmitted *prometheus.CounterVec

	// Histograms (seconds)
	FetchDuration prometheus.Observer

	// Gauges
	SubscriberGauge prometheus.Gauge
	BackoffGauge    prometheus.Gauge // seconds until the backoff deadline; 0 when idle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_poll_cycles_total", Help: "Number of completed successful poll cycles"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_poll_errors_total", Help: "Number of failed poll cycles by error class"}, []string{"class"})
		EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_events_emitted_total", Help: "Number of events broadcast to subscribers by type"}, []string{"type"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_fetch_duration_seconds", Help: "Chat page fetch duration seconds", Buckets: prometheus.DefBuckets})
		SubscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_subscribers", Help: "Current number of connected subscribers"})
		BackoffGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_backoff_seconds", Help: "Current quota backoff delay in seconds (0 when idle)"})
	})
}

// CountPoll increments the successful poll cycle counter.
func CountPoll() {
	if PollCycles != nil {
		PollCycles.Inc()
	}
}

// CountPollError increments the failed cycle counter for an error class.
func CountPollError(class string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(class).Inc()
	}
}

// CountEvent increments the emitted-event counter for an event type.
func CountEvent(eventType string) {
	if EventsEmitted != nil {
		EventsEmitted.WithLabelValues(eventType).Inc()
	}
}

// ObserveFetch records one chat page fetch duration.
func ObserveFetch(d time.Duration) {
	if FetchDuration != nil {
		FetchDuration.Observe(d.Seconds())
	}
}

// SetSubscribers records the current subscriber count.
func SetSubscribers(n int) {
	if SubscriberGauge != nil {
		SubscriberGauge.Set(float64(n))
	}
}

// SetBackoffSeconds records the current backoff delay (0 clears it).
func SetBackoffSeconds(s float64) {
	if BackoffGauge != nil {
		BackoffGauge.Set(s)
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
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
