package indicator

import (
	"math"

	"livermore/internal/model"
)

// TrueRange computes the true-range series for a candle slice: for each bar,
// max(h-l, |h-prevClose|, |l-prevClose|); the first bar uses h-l since there
// is no previous close.
func TrueRange(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		out[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return out
}

// ATR computes the average true range series: RMA(TrueRange(candles), n).
func ATR(candles []model.Candle, n int) []float64 {
	return RMA(TrueRange(candles), n)
}
