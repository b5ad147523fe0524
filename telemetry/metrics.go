// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles           prometheus.Counter
	NotificationsEmitted prometheus.Counter
	TokenValidations     prometheus.Counter
	SessionResets        prometheus.Counter
	FetchErrors          *prometheus.CounterVec
	EventSubMessages     *prometheus.CounterVec

	// Gauges
	LiveChannelsGauge      prometheus.Gauge
	BadgeCountGauge        prometheus.Gauge
	EventSubConnectedGauge prometheus.Gauge // 1=connected,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "livelist_poll_cycles_total", Help: "Number of live-channel poll cycles"})
		NotificationsEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "livelist_notifications_emitted_total", Help: "Number of desktop notifications emitted"})
		TokenValidations = promauto.NewCounter(prometheus.CounterOpts{Name: "livelist_token_validations_total", Help: "Number of token introspection calls"})
		SessionResets = promauto.NewCounter(prometheus.CounterOpts{Name: "livelist_session_resets_total", Help: "Number of destructive session resets (401 or missing scope)"})
		FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livelist_fetch_errors_total", Help: "Number of failed fetches by kind"}, []string{"kind"})
		EventSubMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livelist_eventsub_messages_total", Help: "Number of EventSub messages by type"}, []string{"type"})
		LiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livelist_live_channels", Help: "Currently live followed channels"})
		BadgeCountGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livelist_badge_count", Help: "Current badge count after scope filtering"})
		EventSubConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livelist_eventsub_connected", Help: "EventSub socket connected=1 disconnected=0"})
	})
}

// UpdateEventSubGauge sets gauge to 1 if connected else 0.
func UpdateEventSubGauge(connected bool) {
	if EventSubConnectedGauge == nil {
		return
	}
	if connected {
		EventSubConnectedGauge.Set(1)
	} else {
		EventSubConnectedGauge.Set(0)
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
