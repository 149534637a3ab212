package cache

import "context"

// patternSegment returns seg if non-empty, otherwise the single-segment
// wildcard "*", so an empty symbol or timeframe widens a pattern instead
// of narrowing it to a literal empty segment.
func patternSegment(seg string) string {
	if seg == "" {
		return "*"
	}
	return seg
}

// CandlePattern builds a SCAN pattern over every tier-1 candle key matching
// the given scope; an empty symbol or tf widens that segment to "*".
func CandlePattern(exchangeID, symbol, tf string) string {
	return "candles:" + exchangeID + ":" + patternSegment(symbol) + ":" + patternSegment(tf)
}

// IndicatorPattern builds a SCAN pattern over every tier-1 indicator key
// (any kind, any param suffix) matching the given scope.
func IndicatorPattern(exchangeID, symbol, tf string) string {
	return "indicator:" + exchangeID + ":" + patternSegment(symbol) + ":" + patternSegment(tf) + ":*"
}

// TickerPattern builds a SCAN pattern over ticker keys; tickers have no
// timeframe segment.
func TickerPattern(exchangeID, symbol string) string {
	return "ticker:" + exchangeID + ":" + patternSegment(symbol)
}

// ClearScope deletes every tier-1 candle, indicator, and ticker key
// matching (exchangeID, symbol, tf), used by the control channel's
// clear-cache command. An empty symbol clears the whole exchange; an empty
// tf (with a non-empty symbol) clears every timeframe for that symbol.
// Deletion goes through ClearMatching's SCAN + per-key DEL so it stays
// cluster-safe.
func (s *Store) ClearScope(ctx context.Context, exchangeID, symbol, tf string) (int, error) {
	total := 0
	for _, pattern := range []string{
		CandlePattern(exchangeID, symbol, tf),
		IndicatorPattern(exchangeID, symbol, tf),
		TickerPattern(exchangeID, symbol),
	} {
		n, err := s.ClearMatching(ctx, pattern)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
