package exchange

import "math"

// TPTOPIndex estimates short-term trend strength from daily closes (oldest
// first). A least-squares line is fitted through the closes and projected one
// period past the last candle; the score is the percent distance between that
// projection and the last close.
func TPTOPIndex(closes []float64) (float64, error) {
	n := len(closes)
	if n < 2 {
		return 0, ErrNoHistory
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, c := range closes {
		x := float64(i)
		sumX += x
		sumY += c
		sumXY += x * c
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	last := closes[n-1]
	if last <= 0 {
		return 0, ErrNoHistory
	}

	projected := intercept + slope*fn
	score := (projected - last) / last * 100
	return math.Round(score*100) / 100, nil
}

// PercentChange returns the percent delta from -> to, or 0 when from is zero.
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
