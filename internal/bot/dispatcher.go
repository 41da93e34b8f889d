package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nifty-signals/internal/analysis"
	"nifty-signals/internal/logger"
	"nifty-signals/internal/markethours"
	"nifty-signals/internal/metrics"
	"nifty-signals/internal/model"
	"nifty-signals/internal/notification"
	"nifty-signals/internal/store/sqlite"
)

const (
	listLimit   = 15
	todayRecent = 10

	pleaseWaitText     = "⏳ No signals in the last 24 hours. Running a fresh analysis, please wait..."
	analysisAckText    = "🔬 Analysis started. Results will be sent here when it completes."
	alreadyRunningText = "⏳ Another instance is already running an analysis. Please try again in a few minutes."
	storeErrorText     = "❌ Could not read signals right now. Please try again later."
)

// Store is the read side of the signal store.
type Store interface {
	Recent(ctx context.Context, q sqlite.Query) ([]model.Signal, error)
	CountByType(ctx context.Context, since time.Time) (map[model.SignalType]int, error)
	LastSignalTime(ctx context.Context) (time.Time, bool, error)
}

// Analyzer runs an on-demand analysis cycle.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request) ([]model.Signal, error)
}

// Config configures the dispatcher.
type Config struct {
	PollTimeout          time.Duration
	RetryDelay           time.Duration
	Interval             time.Duration // scheduler cadence shown by /status
	UniverseSize         int
	NotificationsEnabled bool
}

// Dispatcher long-polls for commands and answers them. Analyses it starts
// run in their own goroutines so polling never waits on them.
type Dispatcher struct {
	cfg      Config
	updates  UpdateSource
	store    Store
	analyzer Analyzer
	notifier notification.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	cursor atomic.Int64
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, updates UpdateSource, store Store, analyzer Analyzer, notifier notification.Notifier, m *metrics.Metrics) *Dispatcher {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		updates:  updates,
		store:    store,
		analyzer: analyzer,
		notifier: notifier,
		metrics:  m,
		log:      logger.Component("bot"),
		now:      time.Now,
	}
}

// Cursor returns the highest update id processed.
func (d *Dispatcher) Cursor() int64 { return d.cursor.Load() }

// Wait blocks until every analysis started by a command has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Run polls until ctx is cancelled. Poll failures are retried after RetryDelay.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("command dispatcher started", slog.Duration("poll_timeout", d.cfg.PollTimeout))
	defer d.log.Info("command dispatcher stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := d.updates.GetUpdates(ctx, d.cursor.Load()+1, d.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.metrics.PollError()
			d.log.Warn("poll failed", slog.String("error", err.Error()), slog.Duration("retry_in", d.cfg.RetryDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cfg.RetryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.ID <= d.cursor.Load() {
				continue
			}
			d.cursor.Store(u.ID)
			if u.ChatID == "" || u.Text == "" {
				continue
			}
			d.handle(ctx, u)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, u Update) {
	cmd := ParseCommand(u.Text)
	log := d.log.With(slog.Int64("update_id", u.ID), slog.String("chat_id", u.ChatID), slog.String("command", string(cmd)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("command handler panicked", slog.Any("panic", r))
		}
	}()

	log.Info("command received")
	d.metrics.Command(string(cmd))

	switch cmd {
	case CmdStart:
		d.reply(ctx, u.ChatID, notification.WelcomeText())
	case CmdHelp, CmdMenu:
		d.reply(ctx, u.ChatID, notification.HelpText())
	case CmdSignals:
		d.handleList(ctx, u.ChatID, "", "Latest Technical Signals", true)
	case CmdBuy:
		d.handleList(ctx, u.ChatID, model.SignalBuy, "📈 Buy Signals", false)
	case CmdSell:
		d.handleList(ctx, u.ChatID, model.SignalSell, "📉 Sell Signals", false)
	case CmdToday:
		d.handleToday(ctx, u.ChatID)
	case CmdStatus:
		d.handleStatus(ctx, u.ChatID)
	case CmdAnalyze:
		d.reply(ctx, u.ChatID, analysisAckText)
		d.analyzeAsync(ctx, u.ChatID)
	}
}

func (d *Dispatcher) handleList(ctx context.Context, chatID string, typ model.SignalType, title string, analyzeIfEmpty bool) {
	now := d.now()
	signals, err := d.store.Recent(ctx, sqlite.TrailingDays(now, 1, typ, listLimit))
	if err != nil {
		d.log.Error("read signals failed", slog.String("error", err.Error()))
		d.reply(ctx, chatID, storeErrorText)
		return
	}
	if len(signals) == 0 && analyzeIfEmpty {
		d.reply(ctx, chatID, pleaseWaitText)
		d.analyzeAsync(ctx, chatID)
		return
	}
	d.reply(ctx, chatID, notification.FormatSignalList(title, signals, now))
}

func (d *Dispatcher) handleToday(ctx context.Context, chatID string) {
	now := d.now()
	since := markethours.StartOfDay(now)
	counts, err := d.store.CountByType(ctx, since)
	if err != nil {
		d.log.Error("count signals failed", slog.String("error", err.Error()))
		d.reply(ctx, chatID, storeErrorText)
		return
	}
	recent, err := d.store.Recent(ctx, sqlite.Query{Since: since, Limit: todayRecent})
	if err != nil {
		d.log.Error("read signals failed", slog.String("error", err.Error()))
		d.reply(ctx, chatID, storeErrorText)
		return
	}
	d.reply(ctx, chatID, notification.FormatTodaySummary(counts, recent, now))
}

func (d *Dispatcher) handleStatus(ctx context.Context, chatID string) {
	now := d.now()
	st := notification.Status{
		Now:                  now,
		Interval:             d.cfg.Interval,
		UniverseSize:         d.cfg.UniverseSize,
		NotificationsEnabled: d.cfg.NotificationsEnabled,
		StoreOK:              true,
	}

	counts, err := d.store.CountByType(ctx, markethours.StartOfDay(now))
	if err != nil {
		st.StoreOK = false
		d.log.Warn("status count failed", slog.String("error", err.Error()))
	}
	for _, n := range counts {
		st.TodaySignals += n
	}
	last, ok, err := d.store.LastSignalTime(ctx)
	if err != nil {
		st.StoreOK = false
		d.log.Warn("status last signal failed", slog.String("error", err.Error()))
	} else if ok {
		st.LastSignal = last
	}
	d.reply(ctx, chatID, notification.FormatStatus(st))
}

// analyzeAsync starts a cycle whose digest is delivered to chatID.
func (d *Dispatcher) analyzeAsync(ctx context.Context, chatID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("on-demand analysis panicked", slog.Any("panic", r))
			}
		}()

		_, err := d.analyzer.Run(ctx, analysis.Request{Trigger: analysis.TriggerCommand, ReplyTo: chatID})
		switch {
		case err == nil:
		case errors.Is(err, analysis.ErrCycleInProgress):
			d.reply(ctx, chatID, alreadyRunningText)
		case ctx.Err() != nil:
		default:
			d.log.Error("on-demand analysis failed", slog.String("chat_id", chatID), slog.String("error", err.Error()))
		}
	}()
}

func (d *Dispatcher) reply(ctx context.Context, chatID, text string) {
	delivered := d.notifier.Send(ctx, chatID, text)
	d.metrics.Notification(delivered)
	if !delivered {
		d.log.Warn("reply not delivered", slog.String("chat_id", chatID))
	}
}
