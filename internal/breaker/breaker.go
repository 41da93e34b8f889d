// Package breaker is a consecutive-failure circuit breaker.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	Closed   State = iota // calls pass through
	Open                  // calls rejected until the cool-down elapses
	HalfOpen              // one probe call allowed
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after MaxFailures consecutive failures and rejects calls for
// Cooldown. The first call after the cool-down is a probe: success closes the
// breaker, failure reopens it.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time

	// Ignore reports errors that are returned to the caller without
	// counting as failures, e.g. context cancellation.
	Ignore func(error) bool

	// OnStateChange is called on every transition while the lock is held.
	OnStateChange func(from, to State)
}

// New creates a closed breaker.
func New(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		Ignore:      func(err error) bool { return errors.Is(err, context.Canceled) },
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(HalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if b.Ignore != nil && b.Ignore(err) {
			return err
		}
		b.failures++
		if b.state == HalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(Open)
		}
		return err
	}

	if b.state == HalfOpen {
		b.transition(Closed)
	}
	b.failures = 0
	return nil
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	slog.Warn("circuit breaker state change",
		slog.String("component", "breaker"),
		slog.String("name", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
