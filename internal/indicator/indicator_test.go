package indicator

import (
	"testing"
	"time"

	"nifty-signals/internal/model"
)

func makeBars(closes []float64) []model.PriceBar {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 2,
			Low:    c - 2,
			Close:  c,
			Volume: int64(1000 * (i + 1)),
		}
	}
	return bars
}

func TestCompute_FullWindow(t *testing.T) {
	closes := oversoldSeries() // 15 closes
	snap := Compute(makeBars(closes))

	if snap.RSI14 != 25 {
		t.Errorf("expected RSI14=25, got %.2f", snap.RSI14)
	}
	assertClose(t, "SMA20", snap.SMA20, SMA(closes, 20), 1e-9)
	if snap.SMA50 != nil {
		t.Errorf("expected nil SMA50 for 15 closes, got %v", *snap.SMA50)
	}
	// volumes 1000..15000, last 10 are 6000..15000
	assertClose(t, "AvgVolume10", snap.AvgVolume10, 10500, 1e-9)
	assertClose(t, "WindowHigh", snap.WindowHigh, 102, 1e-9)
	assertClose(t, "WindowLow", snap.WindowLow, 89, 1e-9)
	assertClose(t, "LastClose", snap.LastClose, 94, 1e-9)
	if snap.LastVolume != 15000 {
		t.Errorf("expected LastVolume=15000, got %d", snap.LastVolume)
	}
}

func TestCompute_SMA50WhenAvailable(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i)
	}
	snap := Compute(makeBars(closes))
	if snap.SMA50 == nil {
		t.Fatal("expected SMA50 with 60 closes")
	}
	assertClose(t, "SMA50", *snap.SMA50, 34.5, 1e-9)
}

func TestCompute_ShortAndEmpty(t *testing.T) {
	snap := Compute(makeBars([]float64{100, 101, 102}))
	if snap.RSI14 != NeutralRSIValue {
		t.Errorf("expected neutral RSI, got %.2f", snap.RSI14)
	}
	assertClose(t, "SMA20 degraded", snap.SMA20, 101, 1e-9)

	empty := Compute(nil)
	if empty.RSI14 != NeutralRSIValue || empty.SMA20 != 0 || empty.WindowHigh != 0 || empty.WindowLow != 0 {
		t.Errorf("unexpected snapshot for empty input: %+v", empty)
	}
}
