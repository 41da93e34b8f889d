// Package strategy turns indicator snapshots into BUY/SELL signals.
//
// Each Rule looks only at the snapshot and emits at most one candidate.
// The Engine runs every registered rule unconditionally, in registration
// order, with no deduplication across rules: a symbol may get several
// independent signals in one pass.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"nifty-signals/internal/indicator"
	"nifty-signals/internal/model"
)

// Candidate is a rule verdict before it is stamped with price and time.
type Candidate struct {
	Type        model.SignalType
	Strength    model.Strength
	Description string
}

// Rule is a single threshold check over an indicator snapshot.
type Rule interface {
	// Name returns the rule name (e.g. "rsi_extremes").
	Name() string

	// Evaluate returns a candidate signal or nil.
	// price is the last close the snapshot was derived from.
	Evaluate(price float64, snap indicator.Snapshot) *Candidate
}

// Engine evaluates registered rules for one symbol at a time.
// Safe for concurrent use: rules are stateless and the rule list is fixed.
type Engine struct {
	rules []Rule
	now   func() time.Time
}

// NewEngine creates an engine running rules in the given order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules, now: time.Now}
}

// WithClock replaces the emission clock. Used by tests for determinism.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Rules returns the names of the registered rules.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Evaluate runs every rule and returns the resulting signals in rule order.
// All signals from one call share the same emission timestamp.
func (e *Engine) Evaluate(symbol string, price float64, snap indicator.Snapshot) []model.Signal {
	var signals []model.Signal
	ts := e.now()
	for _, r := range e.rules {
		c := r.Evaluate(price, snap)
		if c == nil {
			continue
		}
		signals = append(signals, model.Signal{
			Symbol:      symbol,
			Type:        c.Type,
			Strength:    c.Strength,
			Price:       decimal.NewFromFloat(price),
			Timestamp:   ts,
			Description: c.Description,
		})
	}
	return signals
}
