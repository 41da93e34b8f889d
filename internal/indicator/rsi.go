package indicator

// RSI returns the Relative Strength Index of the last period deltas of closes.
//
// Gains and losses are averaged with a plain mean over the trailing window
// (not Wilder smoothing). With period or fewer closes the neutral value 50
// is returned. A window without losses yields 100. The result is rounded to
// two decimals.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return NeutralRSIValue
	}

	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}

	p := float64(period)
	avgGain := gain / p
	avgLoss := loss / p
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return round2(100.0 - (100.0 / (1.0 + rs)))
}
