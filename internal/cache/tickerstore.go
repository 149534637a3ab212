package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"livermore/internal/model"
)

// TickerTTL is the fixed lifetime of a ticker entry: overwritten on every
// update, expiring 60 seconds after the last write so a stalled feed drops
// stale prices instead of serving them forever.
const TickerTTL = 60 * time.Second

// WriteTicker overwrites the ticker key with the latest snapshot and resets
// its TTL.
func (s *Store) WriteTicker(ctx context.Context, exchangeID string, t model.Ticker) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: marshal ticker: %w", err)
	}
	key := TickerKey(exchangeID, t.Symbol)
	return s.exec(func() error {
		return s.rdb.Set(ctx, key, payload, TickerTTL).Err()
	})
}

// ReadTicker returns the current ticker for (exchangeID, symbol), or
// (zero, false, nil) if it has expired or was never written.
func (s *Store) ReadTicker(ctx context.Context, exchangeID, symbol string) (model.Ticker, bool, error) {
	var raw string
	found := false
	err := s.exec(func() error {
		var e error
		raw, e = s.rdb.Get(ctx, TickerKey(exchangeID, symbol)).Result()
		if e == goredis.Nil {
			found = false
			return nil
		}
		if e == nil {
			found = true
		}
		return e
	})
	if err != nil || !found {
		return model.Ticker{}, false, err
	}
	var t model.Ticker
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return model.Ticker{}, false, fmt.Errorf("cache: unmarshal ticker: %w", err)
	}
	return t, true, nil
}
