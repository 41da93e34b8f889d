// Package analysis runs one pass over the symbol universe: fetch, compute
// indicators, evaluate rules, persist, publish and notify.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"nifty-signals/internal/indicator"
	"nifty-signals/internal/logger"
	"nifty-signals/internal/metrics"
	"nifty-signals/internal/model"
	"nifty-signals/internal/notification"
	"nifty-signals/internal/pricesource"
	"nifty-signals/internal/strategy"
)

// ErrCycleInProgress is returned when another process holds the cycle lock.
var ErrCycleInProgress = errors.New("analysis cycle already in progress")

const flightKey = "cycle"

// Triggers recorded in logs.
const (
	TriggerScheduler = "scheduler"
	TriggerCommand   = "command"
)

// Request describes why a cycle runs and who asked for it.
type Request struct {
	Trigger string
	ReplyTo string // chat that requested the run; empty for scheduled runs
}

// SignalStore persists a batch atomically.
type SignalStore interface {
	SaveBatch(ctx context.Context, signals []model.Signal) error
}

// SignalPublisher receives every persisted batch.
type SignalPublisher interface {
	Publish(ctx context.Context, cycleID string, signals []model.Signal) error
}

// Locker is a cross-process guard. ok is false when another process holds it.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// Config holds the cycle tunables.
type Config struct {
	Symbols       []string
	LookbackDays  int
	MinBars       int
	RequestDelay  time.Duration
	BroadcastChat string
}

type namedPublisher struct {
	name string
	p    SignalPublisher
}

// Cycle runs analysis passes. At most one pass runs at a time per Cycle;
// a Run that overlaps it waits for that pass and shares its result.
type Cycle struct {
	cfg      Config
	source   pricesource.Source
	engine   *strategy.Engine
	store    SignalStore
	notifier notification.Notifier
	replies  notification.Notifier

	publishers []namedPublisher
	lock       Locker
	metrics    *metrics.Metrics
	health     *metrics.HealthStatus
	now        func() time.Time
	log        *slog.Logger

	flight singleflight.Group
}

// outcome is one pass as seen by every Run that shared it.
type outcome struct {
	signals []model.Signal
	digest  string

	mu     sync.Mutex
	sentTo map[string]bool
}

// claim marks chatID as served and reports whether it was not already.
func (o *outcome) claim(chatID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sentTo[chatID] {
		return false
	}
	o.sentTo[chatID] = true
	return true
}

func (o *outcome) list() []model.Signal {
	if o == nil {
		return nil
	}
	return o.signals
}

// Option configures optional collaborators.
type Option func(*Cycle)

// WithPublisher adds a publisher that receives each persisted batch.
func WithPublisher(name string, p SignalPublisher) Option {
	return func(c *Cycle) { c.publishers = append(c.publishers, namedPublisher{name: name, p: p}) }
}

// WithReplyNotifier sends digests for Request.ReplyTo through n instead of
// the broadcast notifier.
func WithReplyNotifier(n notification.Notifier) Option {
	return func(c *Cycle) { c.replies = n }
}

// WithLock adds a cross-process guard taken after the in-process one.
func WithLock(l Locker) Option {
	return func(c *Cycle) { c.lock = l }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cycle) { c.metrics = m }
}

// WithHealth records the last completed cycle.
func WithHealth(h *metrics.HealthStatus) Option {
	return func(c *Cycle) { c.health = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cycle) { c.now = now }
}

// New creates a Cycle.
func New(cfg Config, source pricesource.Source, engine *strategy.Engine, store SignalStore, notifier notification.Notifier, opts ...Option) *Cycle {
	if cfg.MinBars < 1 {
		cfg.MinBars = 1
	}
	c := &Cycle{
		cfg:      cfg,
		source:   source,
		engine:   engine,
		store:    store,
		notifier: notifier,
		now:      time.Now,
		log:      logger.Component("analysis"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.replies == nil {
		c.replies = notifier
	}
	return c
}

// Symbols returns the configured universe.
func (c *Cycle) Symbols() []string { return c.cfg.Symbols }

// Run analyses every symbol sequentially and returns all signals produced.
//
// Symbols that fail to fetch, return too few bars, or panic are skipped.
// A store failure is returned after the digest has been delivered. When
// ctx is cancelled mid-pass, the partial result is returned with ctx.Err()
// and nothing is persisted or sent.
//
// A Run that starts while a pass is in flight joins it: it returns that
// pass's result and the digest is also sent to its ReplyTo chat.
func (c *Cycle) Run(ctx context.Context, req Request) ([]model.Signal, error) {
	led := false
	v, err, _ := c.flight.Do(flightKey, func() (interface{}, error) {
		led = true
		return c.run(ctx, req)
	})
	out, _ := v.(*outcome)
	if led {
		return out.list(), err
	}
	return c.join(ctx, req, out, err)
}

func (c *Cycle) join(ctx context.Context, req Request, out *outcome, err error) ([]model.Signal, error) {
	log := c.log.With(slog.String("trigger", req.Trigger))
	if out == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return out.list(), err
	}
	log.Info("joined in-flight analysis", slog.Int("signals", len(out.signals)))
	if req.ReplyTo != "" && out.claim(req.ReplyTo) {
		c.deliver(ctx, log, c.replies, req.ReplyTo, out.digest)
	}
	return out.signals, err
}

func (c *Cycle) run(ctx context.Context, req Request) (*outcome, error) {
	ctx = logger.WithCycleID(ctx, logger.NewCycleID())
	log := c.log.With(logger.Attrs(ctx)...)

	if c.lock != nil {
		release, ok, err := c.lock.TryAcquire(ctx)
		switch {
		case err != nil:
			log.Warn("cycle lock unavailable, continuing with local guard", slog.String("error", err.Error()))
		case !ok:
			c.metrics.ObserveCycle(metrics.ResultInProgress, 0)
			return nil, ErrCycleInProgress
		default:
			defer func() {
				if err := release(context.Background()); err != nil {
					log.Warn("cycle lock release failed", slog.String("error", err.Error()))
				}
			}()
		}
	}

	start := c.now()
	log.Info("analysis started",
		slog.String("trigger", req.Trigger),
		slog.Int("symbols", len(c.cfg.Symbols)),
	)

	signals := c.scan(ctx, log)
	out := &outcome{
		signals: signals,
		digest:  notification.FormatDigest(signals, c.now()),
		sentTo:  make(map[string]bool),
	}
	if err := ctx.Err(); err != nil {
		log.Info("analysis cancelled", slog.Int("signals", len(signals)))
		return out, err
	}

	var persistErr error
	if len(signals) > 0 {
		if err := c.store.SaveBatch(ctx, signals); err != nil {
			persistErr = fmt.Errorf("persist %d signals: %w", len(signals), err)
			log.Error("signal persistence failed", slog.String("error", err.Error()))
		} else {
			c.publish(ctx, log, signals)
		}
	}

	c.notify(ctx, log, req, out)

	elapsed := c.now().Sub(start)
	result := metrics.ResultOK
	switch {
	case persistErr != nil:
		result = metrics.ResultError
	case len(signals) == 0:
		result = metrics.ResultEmpty
	}
	c.metrics.ObserveCycle(result, elapsed.Seconds())
	c.metrics.AddSignals(signals)
	c.health.RecordCycle(c.now(), len(signals))

	log.Info("analysis complete",
		slog.Int("signals", len(signals)),
		slog.Duration("elapsed", elapsed),
	)
	return out, persistErr
}

func (c *Cycle) scan(ctx context.Context, log *slog.Logger) []model.Signal {
	var signals []model.Signal
	for i, symbol := range c.cfg.Symbols {
		if i > 0 && c.cfg.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return signals
			case <-time.After(c.cfg.RequestDelay):
			}
		}
		if ctx.Err() != nil {
			return signals
		}
		signals = append(signals, c.analyzeSymbol(ctx, log, symbol)...)
	}
	return signals
}

func (c *Cycle) analyzeSymbol(ctx context.Context, log *slog.Logger, symbol string) (out []model.Signal) {
	log = log.With(slog.String("symbol", symbol))
	defer func() {
		if r := recover(); r != nil {
			log.Error("symbol analysis panicked", slog.Any("panic", r))
			c.metrics.SymbolFailure("panic")
			out = nil
		}
	}()

	bars, err := c.source.Fetch(ctx, symbol, c.cfg.LookbackDays)
	if err != nil {
		log.Warn("price fetch failed", slog.String("error", err.Error()))
		c.metrics.SymbolFailure("fetch")
		return nil
	}
	if len(bars) < c.cfg.MinBars {
		log.Debug("insufficient price history", slog.Int("bars", len(bars)), slog.Int("min_bars", c.cfg.MinBars))
		c.metrics.SymbolFailure("insufficient_data")
		return nil
	}

	snap := indicator.Compute(bars)
	signals := c.engine.Evaluate(symbol, bars[len(bars)-1].Close, snap)
	if len(signals) > 0 {
		log.Info("signals emitted", slog.Int("count", len(signals)), slog.Float64("rsi14", snap.RSI14))
	}
	return signals
}

func (c *Cycle) publish(ctx context.Context, log *slog.Logger, signals []model.Signal) {
	cycleID := logger.CycleID(ctx)
	for _, np := range c.publishers {
		if err := np.p.Publish(ctx, cycleID, signals); err != nil {
			log.Warn("signal publish failed", slog.String("publisher", np.name), slog.String("error", err.Error()))
			c.metrics.PublishError(np.name)
		}
	}
}

// notify sends the digest to the broadcast chat and the requesting chat.
// An empty pass only answers the requesting chat.
func (c *Cycle) notify(ctx context.Context, log *slog.Logger, req Request, out *outcome) {
	if len(out.signals) > 0 && c.cfg.BroadcastChat != "" && out.claim(c.cfg.BroadcastChat) {
		c.deliver(ctx, log, c.notifier, c.cfg.BroadcastChat, out.digest)
	}
	if req.ReplyTo != "" && out.claim(req.ReplyTo) {
		c.deliver(ctx, log, c.replies, req.ReplyTo, out.digest)
	}
}

func (c *Cycle) deliver(ctx context.Context, log *slog.Logger, n notification.Notifier, chatID, text string) {
	delivered := n.Send(ctx, chatID, text)
	c.metrics.Notification(delivered)
	if !delivered {
		log.Warn("digest not delivered", slog.String("chat_id", chatID))
	}
}
