// Package indicator computes technical indicators over a daily price series.
//
// Every function here is a pure function of its input: nothing is retained
// between calls, so a Snapshot only lives for one analysis pass.
package indicator

import (
	"math"

	"nifty-signals/internal/model"
)

// Standard periods used by the signal rules.
const (
	RSIPeriod       = 14
	SMAShortPeriod  = 20
	SMALongPeriod   = 50
	VolumePeriod    = 10
	NeutralRSIValue = 50.0
)

// Snapshot holds the indicators derived from one fetched window.
//
// WindowHigh/WindowLow are the extrema of whatever window the price source
// returned (nominally 30 calendar days). They keep the historical
// high_52w/low_52w JSON names but are not true 52-week values.
type Snapshot struct {
	RSI14       float64  `json:"rsi14"`
	SMA20       float64  `json:"sma20"`
	SMA50       *float64 `json:"sma50,omitempty"` // nil when fewer than 50 closes
	AvgVolume10 float64  `json:"avg_volume10"`
	WindowHigh  float64  `json:"high_52w"`
	WindowLow   float64  `json:"low_52w"`
	LastClose   float64  `json:"last_close"`
	LastVolume  int64    `json:"last_volume"`
}

// Compute derives a Snapshot from bars (ascending by date).
// Short series degrade gracefully: neutral RSI, SMA over what is available.
func Compute(bars []model.PriceBar) Snapshot {
	closes := model.Closes(bars)

	snap := Snapshot{
		RSI14:       RSI(closes, RSIPeriod),
		SMA20:       SMA(closes, SMAShortPeriod),
		AvgVolume10: AverageVolume(bars, VolumePeriod),
	}
	if len(closes) >= SMALongPeriod {
		v := SMA(closes, SMALongPeriod)
		snap.SMA50 = &v
	}
	snap.WindowHigh, snap.WindowLow = WindowExtrema(bars)

	if n := len(bars); n > 0 {
		snap.LastClose = bars[n-1].Close
		snap.LastVolume = bars[n-1].Volume
	}
	return snap
}

// AverageVolume is the mean volume of the last n bars, or of all bars if fewer.
func AverageVolume(bars []model.PriceBar, n int) float64 {
	return SMA(model.Volumes(bars), n)
}

// WindowExtrema returns max(high) and min(low) over bars. Zero values for an empty window.
func WindowExtrema(bars []model.PriceBar) (high, low float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
