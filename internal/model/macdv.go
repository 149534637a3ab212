package model

// MACDVValue is one computed point of the volatility-normalised MACD series
// for a (symbol, timeframe) pair.
type MACDVValue struct {
	Timestamp int64       `json:"timestamp"`
	FastEMA   float64     `json:"fastEMA"`
	SlowEMA   float64     `json:"slowEMA"`
	MACDV     float64     `json:"macdV"`
	Signal    float64     `json:"signal"`
	Histogram float64     `json:"histogram"`
	ATR       float64     `json:"atr"`
	Stage     string      `json:"stage"`
	Params    MACDVParams `json:"params"`
}

// DeriveStage classifies a macdV reading into the zone the alert engine's
// level ladder operates over, for display purposes only — the alert
// engine itself always re-derives crossings from the raw macdV value, not
// from this label.
func DeriveStage(macdV float64) string {
	abs := macdV
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 150:
		return "neutral"
	case abs < 400:
		if macdV < 0 {
			return "oversold"
		}
		return "overbought"
	default:
		if macdV < 0 {
			return "extreme_oversold"
		}
		return "extreme_overbought"
	}
}

// MACDVParams holds the period configuration for the indicator:
// fast=12, slow=26, atrPeriod=26, signalPeriod=9 by default.
type MACDVParams struct {
	Fast      int
	Slow      int
	ATRPeriod int
	Signal    int
}

// DefaultMACDVParams returns the standard period configuration.
func DefaultMACDVParams() MACDVParams {
	return MACDVParams{Fast: 12, Slow: 26, ATRPeriod: 26, Signal: 9}
}

// MinBarsForReadiness is the service-level readiness gate, distinct from
// (and stricter than) the mathematical minimum
// max(slow, atrPeriod) + signalPeriod.
const MinBarsForReadiness = 60
