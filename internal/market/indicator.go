package market

// EMASeries computes an exponential moving average over the full closing
// series, returning one value per input point. The series is seeded with the
// first close instead of an SMA warm-up window, so the first ~period values
// are biased toward the earliest prices. Callers fetch enough history that
// only the settled tail matters.
func EMASeries(closes []float64, period int) []float64 {
	if len(closes) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(closes))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

// BelowBandStreak reports whether each of the last window closes finished at
// or below ema[i]*(1-band). Both slices must be index-aligned; a window
// larger than the available history never matches.
func BelowBandStreak(closes, ema []float64, band float64, window int) bool {
	if window <= 0 || len(closes) < window || len(ema) < len(closes) {
		return false
	}
	for i := len(closes) - window; i < len(closes); i++ {
		if closes[i] > ema[i]*(1-band) {
			return false
		}
	}
	return true
}
