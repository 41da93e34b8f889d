package strategy

import (
	"fmt"
	"math"

	"nifty-signals/internal/indicator"
	"nifty-signals/internal/model"
)

// Rule thresholds.
const (
	RSIOversold   = 30.0
	RSIOverbought = 70.0

	SMADeviationPct = 2.0
	SMABuyMaxRSI    = 60.0
	SMASellMinRSI   = 40.0

	VolumeSpikeRatio = 1.5
	NearExtremePct   = 5.0
)

// CoreRules returns the always-on rule set: RSI extremes and SMA20 deviation.
func CoreRules() []Rule {
	return []Rule{RSIExtremes{}, SMADeviation{}}
}

// RSIExtremes flags oversold (<30) as a strong BUY and overbought (>70) as a strong SELL.
type RSIExtremes struct{}

func (RSIExtremes) Name() string { return "rsi_extremes" }

func (RSIExtremes) Evaluate(_ float64, snap indicator.Snapshot) *Candidate {
	switch {
	case snap.RSI14 < RSIOversold:
		return &Candidate{
			Type:        model.SignalBuy,
			Strength:    model.StrengthStrong,
			Description: fmt.Sprintf("RSI Oversold: %.2f", snap.RSI14),
		}
	case snap.RSI14 > RSIOverbought:
		return &Candidate{
			Type:        model.SignalSell,
			Strength:    model.StrengthStrong,
			Description: fmt.Sprintf("RSI Overbought: %.2f", snap.RSI14),
		}
	}
	return nil
}

// SMADeviation flags price stretched more than 2% from SMA20, gated by RSI.
// It may co-fire with RSIExtremes (e.g. RSI 35 and price 3% below SMA20).
type SMADeviation struct{}

func (SMADeviation) Name() string { return "sma20_deviation" }

func (SMADeviation) Evaluate(price float64, snap indicator.Snapshot) *Candidate {
	if snap.SMA20 <= 0 {
		return nil
	}
	dev := (price/snap.SMA20 - 1) * 100

	switch {
	case dev > SMADeviationPct && snap.RSI14 < SMABuyMaxRSI:
		return &Candidate{
			Type:        model.SignalBuy,
			Strength:    model.StrengthMedium,
			Description: fmt.Sprintf("Price %.1f%% above SMA20", dev),
		}
	case dev < -SMADeviationPct && snap.RSI14 > SMASellMinRSI:
		return &Candidate{
			Type:        model.SignalSell,
			Strength:    model.StrengthMedium,
			Description: fmt.Sprintf("Price %.1f%% below SMA20", math.Abs(dev)),
		}
	}
	return nil
}

// VolumeBreakout flags a volume spike (>1.5x the 10-day average) while price
// sits within 5% of the window high (BUY) or window low (SELL).
type VolumeBreakout struct{}

func (VolumeBreakout) Name() string { return "volume_breakout" }

func (VolumeBreakout) Evaluate(price float64, snap indicator.Snapshot) *Candidate {
	if snap.AvgVolume10 <= 0 {
		return nil
	}
	ratio := float64(snap.LastVolume) / snap.AvgVolume10
	if ratio <= VolumeSpikeRatio {
		return nil
	}

	switch {
	case snap.WindowHigh > 0 && price >= snap.WindowHigh*(1-NearExtremePct/100):
		return &Candidate{
			Type:        model.SignalBuy,
			Strength:    model.StrengthMedium,
			Description: fmt.Sprintf("Volume breakout near high: %.1fx avg volume", ratio),
		}
	case snap.WindowLow > 0 && price <= snap.WindowLow*(1+NearExtremePct/100):
		return &Candidate{
			Type:        model.SignalSell,
			Strength:    model.StrengthMedium,
			Description: fmt.Sprintf("Volume breakdown near low: %.1fx avg volume", ratio),
		}
	}
	return nil
}
