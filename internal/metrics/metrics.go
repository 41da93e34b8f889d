// Package metrics holds the Prometheus collectors and the health status of
// the signal bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"nifty-signals/internal/model"
)

// Cycle results.
const (
	ResultOK         = "ok"
	ResultEmpty      = "empty"
	ResultError      = "error"
	ResultInProgress = "in_progress"
)

// Metrics holds all Prometheus metrics for the signal bot.
// Every method is safe on a nil *Metrics.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec // labels: result
	CycleDuration      prometheus.Histogram
	SignalsTotal       *prometheus.CounterVec // labels: type, strength
	SymbolFailures     *prometheus.CounterVec // labels: reason
	NotificationsTotal *prometheus.CounterVec // labels: result
	CommandsTotal      *prometheus.CounterVec // labels: command
	PollErrors         prometheus.Counter
	SchedulerState     prometheus.Gauge // 0=running, 1=backoff
	PublishErrors      *prometheus.CounterVec // labels: publisher
	BreakerState       prometheus.Gauge       // 0=closed, 1=open, 2=half-open
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_cycles_total",
			Help: "Analysis cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_cycle_duration_seconds",
			Help:    "Wall time of one analysis cycle",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_total",
			Help: "Signals emitted by type and strength",
		}, []string{"type", "strength"}),
		SymbolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_symbol_failures_total",
			Help: "Symbols skipped during a cycle by reason",
		}, []string{"reason"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_notifications_total",
			Help: "Notification deliveries by result",
		}, []string{"result"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_commands_total",
			Help: "Chat commands handled",
		}, []string{"command"}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_poll_errors_total",
			Help: "Failed long-poll requests for chat updates",
		}),
		SchedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_scheduler_state",
			Help: "Scheduler state (0=running, 1=backoff)",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_publish_errors_total",
			Help: "Failed signal batch publications by publisher",
		}, []string{"publisher"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_price_source_breaker_state",
			Help: "Price source circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SignalsTotal,
		m.SymbolFailures,
		m.NotificationsTotal,
		m.CommandsTotal,
		m.PollErrors,
		m.SchedulerState,
		m.PublishErrors,
		m.BreakerState,
	)
	return m
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(result string, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	if result != ResultInProgress {
		m.CycleDuration.Observe(seconds)
	}
}

// AddSignals counts emitted signals.
func (m *Metrics) AddSignals(signals []model.Signal) {
	if m == nil {
		return
	}
	for _, s := range signals {
		m.SignalsTotal.WithLabelValues(string(s.Type), string(s.Strength)).Inc()
	}
}

// SymbolFailure counts a skipped symbol.
func (m *Metrics) SymbolFailure(reason string) {
	if m == nil {
		return
	}
	m.SymbolFailures.WithLabelValues(reason).Inc()
}

// Notification counts a delivery attempt.
func (m *Metrics) Notification(delivered bool) {
	if m == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

// Command counts a handled chat command.
func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(name).Inc()
}

// PollError counts a failed update poll.
func (m *Metrics) PollError() {
	if m == nil {
		return
	}
	m.PollErrors.Inc()
}

// SetSchedulerState records the scheduler state (0=running, 1=backoff).
func (m *Metrics) SetSchedulerState(v int) {
	if m == nil {
		return
	}
	m.SchedulerState.Set(float64(v))
}

// PublishError counts a failed publication.
func (m *Metrics) PublishError(publisher string) {
	if m == nil {
		return
	}
	m.PublishErrors.WithLabelValues(publisher).Inc()
}

// SetBreakerState records the price source breaker state.
func (m *Metrics) SetBreakerState(v int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(v))
}
