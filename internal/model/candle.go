package model

import "time"

// Candle is an OHLCV bar for one (exchange, symbol, timeframe) series.
// Timestamp is aligned to the timeframe boundary in UTC milliseconds.
type Candle struct {
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	Timestamp   int64   `json:"timestamp"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	IsSynthetic bool    `json:"isSynthetic"`
	SequenceNum int64   `json:"sequenceNum,omitempty"`
}

// Key identifies the series a candle belongs to, independent of timestamp.
func (c *Candle) Key(exchangeID string) string {
	return exchangeID + ":" + c.Symbol + ":" + c.Timeframe
}

// TimeUTC returns the candle's boundary as a time.Time.
func (c *Candle) TimeUTC() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Synthetic builds a gap-fill candle carrying forward the prior close.
func Synthetic(symbol, tf string, ts int64, priorClose float64) Candle {
	return Candle{
		Symbol:      symbol,
		Timeframe:   tf,
		Timestamp:   ts,
		Open:        priorClose,
		High:        priorClose,
		Low:         priorClose,
		Close:       priorClose,
		Volume:      0,
		IsSynthetic: true,
	}
}
