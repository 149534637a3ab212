package model

// Ticker is a best-effort snapshot of the current market for a symbol.
// Overwritten on each update; callers rely on the cache layer's 60s TTL
// rather than any field here to detect staleness.
type Ticker struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	Change24h        float64 `json:"change24h"`
	ChangePercent24h float64 `json:"changePercent24h"`
	Volume24h        float64 `json:"volume24h"`
	Low24h           float64 `json:"low24h"`
	High24h          float64 `json:"high24h"`
	Timestamp        int64   `json:"timestamp"`
}
