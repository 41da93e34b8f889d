// Package scheduler drives periodic analysis cycles and calendar jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nifty-signals/internal/analysis"
	"nifty-signals/internal/logger"
	"nifty-signals/internal/markethours"
	"nifty-signals/internal/metrics"
	"nifty-signals/internal/model"
)

// State is the scheduler loop state.
type State int32

const (
	Running State = iota // normal cadence
	Backoff              // last cycle failed
)

func (s State) String() string {
	if s == Backoff {
		return "BACKOFF"
	}
	return "RUNNING"
}

// Runner runs one analysis cycle.
type Runner interface {
	Run(ctx context.Context, req analysis.Request) ([]model.Signal, error)
}

// Config configures the loop.
type Config struct {
	Interval        time.Duration // between successful cycles
	Backoff         time.Duration // after a failed cycle
	MarketHoursOnly bool          // skip cycles while NSE is closed
}

// Scheduler runs a cycle immediately and then every Interval, waiting only
// Backoff after a failure. It stops when the context passed to Start is cancelled.
type Scheduler struct {
	cfg     Config
	runner  Runner
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	isOpen  func(time.Time) bool

	state     atomic.Int32
	done      chan struct{}
	startOnce sync.Once
}

// New creates a scheduler.
func New(cfg Config, runner Runner, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		metrics: m,
		log:     logger.Component("scheduler"),
		now:     time.Now,
		isOpen:  markethours.IsMarketOpen,
		done:    make(chan struct{}),
	}
}

// Start launches the loop. Calling it more than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.log.Info("scheduler started",
			slog.Duration("interval", s.cfg.Interval),
			slog.Duration("backoff", s.cfg.Backoff),
			slog.Bool("market_hours_only", s.cfg.MarketHoursOnly),
		)
		go s.loop(ctx)
	})
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// State returns the current loop state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.log.Info("scheduler stopped")

	for {
		wait := s.tick(ctx)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick runs one cycle and returns how long to sleep before the next.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	if s.cfg.MarketHoursOnly && !s.isOpen(s.now()) {
		s.log.Debug("market closed, skipping cycle")
		s.setState(Running)
		return s.cfg.Interval
	}

	err := s.runCycle(ctx)
	switch {
	case err == nil:
		s.setState(Running)
		return s.cfg.Interval
	case errors.Is(err, analysis.ErrCycleInProgress):
		s.log.Info("cycle already running, skipping")
		s.setState(Running)
		return s.cfg.Interval
	case ctx.Err() != nil:
		return 0
	default:
		s.log.Error("analysis cycle failed, backing off",
			slog.String("error", err.Error()),
			slog.Duration("backoff", s.cfg.Backoff),
		)
		s.setState(Backoff)
		return s.cfg.Backoff
	}
}

func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis cycle panicked: %v", r)
		}
	}()
	_, err = s.runner.Run(ctx, analysis.Request{Trigger: analysis.TriggerScheduler})
	return err
}

func (s *Scheduler) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.log.Info("scheduler state", slog.String("state", st.String()))
	}
	s.metrics.SetSchedulerState(int(st))
}
