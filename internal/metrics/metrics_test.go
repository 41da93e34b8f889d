package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"nifty-signals/internal/model"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCycle(ResultOK, 1.5)
	m.ObserveCycle(ResultInProgress, 0)
	m.AddSignals([]model.Signal{
		{Type: model.SignalBuy, Strength: model.StrengthStrong, Price: decimal.NewFromInt(1)},
		{Type: model.SignalBuy, Strength: model.StrengthStrong, Price: decimal.NewFromInt(1)},
		{Type: model.SignalSell, Strength: model.StrengthMedium, Price: decimal.NewFromInt(1)},
	})
	m.Notification(true)
	m.Notification(false)
	m.Command("signals")
	m.PollError()
	m.SetSchedulerState(1)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues(ResultOK)); got != 1 {
		t.Errorf("cycles ok = %v", got)
	}
	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("BUY", "STRONG")); got != 2 {
		t.Errorf("buy strong = %v", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed notifications = %v", got)
	}
	if got := testutil.ToFloat64(m.SchedulerState); got != 1 {
		t.Errorf("scheduler state = %v", got)
	}
	if got := testutil.CollectAndCount(m.CycleDuration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycle(ResultOK, 1)
	m.AddSignals([]model.Signal{{}})
	m.SymbolFailure("fetch")
	m.Notification(true)
	m.Command("help")
	m.PollError()
	m.SetSchedulerState(0)
	m.PublishError("redis")
	m.SetBreakerState(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthStatus_Report(t *testing.T) {
	h := NewHealthStatus(true, true)
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	h.Check(context.Background(), ok, ok)
	r := h.Report()
	if r.Status != "healthy" || !r.StoreOK || !r.RedisConnected || !r.NotificationsConfigured {
		t.Fatalf("report = %+v", r)
	}
	if r.LastCycleAt != nil {
		t.Error("LastCycleAt should be nil before any cycle")
	}

	at := time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	h.RecordCycle(at, 3)
	h.Check(context.Background(), ok, down)
	r = h.Report()
	if r.Status != "degraded" || r.RedisConnected {
		t.Fatalf("report = %+v", r)
	}
	if r.LastCycleAt == nil || !r.LastCycleAt.Equal(at) || r.LastCycleSignals != 3 {
		t.Errorf("last cycle = %v %d", r.LastCycleAt, r.LastCycleSignals)
	}
}

func TestHealthStatus_RedisDisabled(t *testing.T) {
	h := NewHealthStatus(false, false)
	h.Check(context.Background(), pingFunc(func(context.Context) error { return nil }), nil)
	if r := h.Report(); r.Status != "healthy" || r.RedisEnabled {
		t.Fatalf("report = %+v", r)
	}
}
