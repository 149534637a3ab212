package indicator

import (
	"math"

	"livermore/internal/model"
)

// MACDV computes the volatility-normalised MACD series over a candle
// series: macdV = ((fastEMA - slowEMA) / ATR(atrPeriod)) * 100, with
// signal = EMA(macdV, signalPeriod) and histogram = macdV - signal.
//
// The mathematical minimum length to emit a non-NaN value is
// max(slow, atrPeriod) + signalPeriod; callers that additionally need the
// service-level readiness gate (60 bars) apply model.MinBarsForReadiness
// themselves — this function always returns the full series, NaN-padded.
func MACDV(candles []model.Candle, params model.MACDVParams) []model.MACDVValue {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := EMA(closes, params.Fast)
	slow := EMA(closes, params.Slow)
	atr := ATR(candles, params.ATRPeriod)

	macdV := make([]float64, len(candles))
	for i := range candles {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) || math.IsNaN(atr[i]) || atr[i] == 0 {
			macdV[i] = math.NaN()
			continue
		}
		macdV[i] = ((fast[i] - slow[i]) / atr[i]) * 100
	}

	signal := EMA(macdV, params.Signal)

	out := make([]model.MACDVValue, len(candles))
	for i, c := range candles {
		out[i] = model.MACDVValue{
			Timestamp: c.Timestamp,
			FastEMA:   fast[i],
			SlowEMA:   slow[i],
			MACDV:     macdV[i],
			Signal:    signal[i],
			ATR:       atr[i],
		}
		if !math.IsNaN(macdV[i]) && !math.IsNaN(signal[i]) {
			out[i].Histogram = macdV[i] - signal[i]
		} else {
			out[i].Histogram = math.NaN()
		}
	}
	return out
}

// Ready reports whether the given index of a MACDV series satisfies the
// service-level readiness gate (60 prior bars, i.e. index >= 59) and is not
// NaN — the math can produce a value earlier, but the service only
// considers the series "ready" from bar 60 on.
func Ready(series []model.MACDVValue, i int) bool {
	return i >= model.MinBarsForReadiness-1 && i < len(series) && !math.IsNaN(series[i].MACDV)
}
