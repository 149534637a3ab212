package exchange

import (
	"context"
	"log/slog"

	"livermore/internal/cache"
	"livermore/internal/model"
	"livermore/internal/pubsub"
)

// Sink is the tier-1 write path every adapter publishes normalised candles
// and tickers through. It is the sole writer of candle/ticker keys for the
// symbols its owning adapter serves; no other component constructs or
// writes these keys.
type Sink struct {
	Store *cache.Store
	Bus   *pubsub.Bus
	Log   *slog.Logger

	// OnCandleClose, when set, is invoked after a closed candle is
	// published so the caller can record a metric without this package
	// importing internal/metrics directly.
	OnCandleClose func(exchangeID, symbol, timeframe string)
}

// WriteCandle stores c (idempotent: addCandleIfNewer semantics live in the
// cache layer) and, when closed is true, publishes on the exchange-scoped
// candle-close channel so the aggregation/indicator service picks it up.
// Exchange order is preserved per series: a candle older than the stored
// latest for its key is dropped, and for the same timestamp a lower
// sequence number never replaces a higher one.
func (s *Sink) WriteCandle(ctx context.Context, exchangeID string, c model.Candle, closed bool) {
	if latest, found, err := s.Store.LatestCandle(ctx, exchangeID, c.Symbol, c.Timeframe); err == nil && found {
		if c.Timestamp < latest.Timestamp {
			s.Log.Debug("sink: dropping stale candle", "exchange", exchangeID, "symbol", c.Symbol, "tf", c.Timeframe, "ts", c.Timestamp, "latest", latest.Timestamp)
			return
		}
		if c.Timestamp == latest.Timestamp && c.SequenceNum > 0 && c.SequenceNum < latest.SequenceNum {
			s.Log.Debug("sink: dropping lower-sequence duplicate", "exchange", exchangeID, "symbol", c.Symbol, "tf", c.Timeframe, "seq", c.SequenceNum, "latest", latest.SequenceNum)
			return
		}
	}
	if err := s.Store.WriteCandle(ctx, exchangeID, c); err != nil {
		s.Log.Error("sink: write candle failed", "exchange", exchangeID, "symbol", c.Symbol, "tf", c.Timeframe, "err", err)
		return
	}
	if !closed {
		return
	}
	channel := cache.CandleCloseChannel(exchangeID, c.Symbol, c.Timeframe)
	if err := s.Bus.PublishJSON(ctx, channel, c); err != nil {
		s.Log.Error("sink: publish candle close failed", "channel", channel, "err", err)
		return
	}
	if s.OnCandleClose != nil {
		s.OnCandleClose(exchangeID, c.Symbol, c.Timeframe)
	}
}

// WriteTicker stores t and publishes it on the ticker channel. Only ticker
// updates, never snapshots, drive this path.
func (s *Sink) WriteTicker(ctx context.Context, exchangeID string, t model.Ticker) {
	if err := s.Store.WriteTicker(ctx, exchangeID, t); err != nil {
		s.Log.Error("sink: write ticker failed", "exchange", exchangeID, "symbol", t.Symbol, "err", err)
		return
	}
	if err := s.Bus.PublishJSON(ctx, cache.TickerChannel(exchangeID, t.Symbol), t); err != nil {
		s.Log.Error("sink: publish ticker failed", "err", err)
	}
}
