// transform.go holds the public boundary's whitelist transformer. Every
// function here names its output fields explicitly: a field added to
// model.Candle or model.AlertRecord upstream never reaches a client unless
// one of these functions is edited to expose it. Nothing in this package
// forwards a raw internal struct.
package gateway

import (
	"time"

	"github.com/shopspring/decimal"

	"livermore/internal/model"
)

func decimalString(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// TransformCandle renders a candle into the public wire shape: decimal
// strings for every price/volume field, ISO 8601 for the timestamp.
func TransformCandle(c model.Candle) PublicCandle {
	return PublicCandle{
		Timestamp: time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339),
		Open:      decimalString(c.Open),
		High:      decimalString(c.High),
		Low:       decimalString(c.Low),
		Close:     decimalString(c.Close),
		Volume:    decimalString(c.Volume),
	}
}

// TransformAlert renders a triggered alert into the public signal shape.
// Every alert the engine produces today is a momentum signal (MACD-V
// level-crossing/reversal); signal_type stays a field of its own so a
// future trend detector can reuse this transformer without a shape change.
func TransformAlert(exchangeName string, a model.AlertRecord) PublicSignal {
	return PublicSignal{
		Symbol:     a.Symbol,
		Exchange:   exchangeName,
		Timeframe:  a.Timeframe,
		SignalType: SignalTypeMomentum,
		Direction:  a.PublicDirection(),
		Strength:   a.PublicStrength(),
		Price:      decimalString(a.Price),
		Timestamp:  time.UnixMilli(a.TriggeredAt).UTC().Format(time.RFC3339),
	}
}
