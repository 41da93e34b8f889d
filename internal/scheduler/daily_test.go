package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nifty-signals/internal/markethours"
	"nifty-signals/internal/model"
	"nifty-signals/internal/store/sqlite"
)

type fakeSummaryStore struct {
	since time.Time
	query sqlite.Query
}

func (f *fakeSummaryStore) CountByType(ctx context.Context, since time.Time) (map[model.SignalType]int, error) {
	f.since = since
	return map[model.SignalType]int{model.SignalBuy: 2, model.SignalSell: 1}, nil
}

func (f *fakeSummaryStore) Recent(ctx context.Context, q sqlite.Query) ([]model.Signal, error) {
	f.query = q
	return []model.Signal{{
		Symbol: "HDFCBANK.NS", Type: model.SignalBuy, Strength: model.StrengthMedium,
		Price: decimal.NewFromInt(1600), Timestamp: q.Since.Add(time.Hour),
	}}, nil
}

type captureNotifier struct {
	chatID, text string
	calls        int
}

func (c *captureNotifier) Send(ctx context.Context, chatID, text string) bool {
	c.calls++
	c.chatID, c.text = chatID, text
	return true
}

func TestDailySummary_Send(t *testing.T) {
	store, n := &fakeSummaryStore{}, &captureNotifier{}
	d, err := NewDailySummary("15:45", store, n, "broadcast")
	if err != nil {
		t.Fatalf("NewDailySummary: %v", err)
	}
	d.now = func() time.Time { return time.Date(2026, 3, 2, 15, 45, 0, 0, markethours.IST) }

	if err := d.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n.chatID != "broadcast" {
		t.Errorf("chat = %q", n.chatID)
	}
	for _, want := range []string{"Total Signals:</b> 3", "HDFCBANK"} {
		if !strings.Contains(n.text, want) {
			t.Errorf("summary missing %q:\n%s", want, n.text)
		}
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, markethours.IST); !store.since.Equal(want) || !store.query.Since.Equal(want) {
		t.Errorf("since = %v / %v, want IST midnight", store.since, store.query.Since)
	}
	if store.query.Limit != summaryRecent {
		t.Errorf("limit = %d", store.query.Limit)
	}
}

func TestDailySummary_SkipsNonTradingDays(t *testing.T) {
	n := &captureNotifier{}
	d, err := NewDailySummary("15:45", &fakeSummaryStore{}, n, "broadcast")
	if err != nil {
		t.Fatalf("NewDailySummary: %v", err)
	}
	d.now = func() time.Time { return time.Date(2026, 3, 7, 15, 45, 0, 0, markethours.IST) } // Saturday

	if err := d.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n.calls != 0 {
		t.Error("summary sent on a Saturday")
	}
}

func TestNewDailySummary_InvalidTime(t *testing.T) {
	if _, err := NewDailySummary("25:99", &fakeSummaryStore{}, &captureNotifier{}, "x"); err == nil {
		t.Fatal("expected error for invalid time")
	}
}
