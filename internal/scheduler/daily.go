package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"nifty-signals/internal/logger"
	"nifty-signals/internal/markethours"
	"nifty-signals/internal/model"
	"nifty-signals/internal/notification"
	"nifty-signals/internal/store/sqlite"
)

const summaryRecent = 10

// SummaryStore is the read side of the signal store used by the summary.
type SummaryStore interface {
	CountByType(ctx context.Context, since time.Time) (map[model.SignalType]int, error)
	Recent(ctx context.Context, q sqlite.Query) ([]model.Signal, error)
}

// DailySummary sends today's signal summary to the broadcast chat at a
// fixed IST time on NSE trading days.
type DailySummary struct {
	cron     *gocron.Scheduler
	store    SummaryStore
	notifier notification.Notifier
	chatID   string
	now      func() time.Time
	log      *slog.Logger
}

// NewDailySummary schedules the job at "HH:MM" IST. Start must be called to run it.
func NewDailySummary(at string, store SummaryStore, notifier notification.Notifier, chatID string) (*DailySummary, error) {
	d := &DailySummary{
		cron:     gocron.NewScheduler(markethours.IST),
		store:    store,
		notifier: notifier,
		chatID:   chatID,
		now:      time.Now,
		log:      logger.Component("daily_summary"),
	}
	d.cron.SingletonModeAll()

	if _, err := d.cron.Every(1).Day().At(at).Do(d.run); err != nil {
		return nil, fmt.Errorf("schedule daily summary at %q: %w", at, err)
	}
	return d, nil
}

// Start runs the calendar in the background.
func (d *DailySummary) Start() {
	d.cron.StartAsync()
	d.log.Info("daily summary scheduled")
}

// Stop stops the calendar.
func (d *DailySummary) Stop() {
	d.cron.Stop()
}

func (d *DailySummary) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Send(ctx); err != nil {
		d.log.Error("daily summary failed", slog.String("error", err.Error()))
	}
}

// Send builds and delivers the summary now. Non-trading days are skipped.
func (d *DailySummary) Send(ctx context.Context) error {
	now := d.now()
	if !markethours.IsTradingDay(now) {
		d.log.Debug("not a trading day, skipping summary")
		return nil
	}

	since := markethours.StartOfDay(now)
	counts, err := d.store.CountByType(ctx, since)
	if err != nil {
		return fmt.Errorf("count signals: %w", err)
	}
	recent, err := d.store.Recent(ctx, sqlite.Query{Since: since, Limit: summaryRecent})
	if err != nil {
		return fmt.Errorf("recent signals: %w", err)
	}

	if !d.notifier.Send(ctx, d.chatID, notification.FormatTodaySummary(counts, recent, now)) {
		return fmt.Errorf("summary not delivered to %s", d.chatID)
	}
	return nil
}
