package indicator

// SMA returns the arithmetic mean of the last n values.
// Fewer than n values averages everything available; empty input returns 0.
//
// A running mean is used so that n identical values average to exactly that value.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) == 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}

	mean := 0.0
	for i, v := range values[len(values)-n:] {
		mean += (v - mean) / float64(i+1)
	}
	return mean
}
