// Package backtest replays the signal rules over historical daily bars.
package backtest

import (
	"time"

	"nifty-signals/internal/indicator"
	"nifty-signals/internal/model"
	"nifty-signals/internal/strategy"
)

// Config controls the sliding window fed to the indicators.
type Config struct {
	Window  int // bars per evaluation, nominally one analysis lookback
	MinBars int // windows shorter than this are skipped
}

// Report is the outcome of replaying one symbol.
type Report struct {
	Symbol    string
	Bars      int
	Evaluated int
	Signals   []model.Signal
	Counts    map[model.SignalType]int
}

// Replay evaluates rules on every window ending at each bar, oldest first.
// Each signal is stamped with the date of the bar that closed its window.
func Replay(symbol string, bars []model.PriceBar, rules []strategy.Rule, cfg Config) Report {
	if cfg.Window <= 0 {
		cfg.Window = 21
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = 2
	}

	var at time.Time
	engine := strategy.NewEngine(rules...).WithClock(func() time.Time { return at })

	r := Report{Symbol: symbol, Bars: len(bars), Counts: map[model.SignalType]int{}}
	for i := range bars {
		start := i + 1 - cfg.Window
		if start < 0 {
			start = 0
		}
		window := bars[start : i+1]
		if len(window) < cfg.MinBars {
			continue
		}

		at = bars[i].Date
		snap := indicator.Compute(window)
		r.Evaluated++
		for _, s := range engine.Evaluate(symbol, snap.LastClose, snap) {
			r.Signals = append(r.Signals, s)
			r.Counts[s.Type]++
		}
	}
	return r
}
