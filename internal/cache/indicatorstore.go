package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"livermore/internal/model"
)

// WriteIndicator stores the latest MACD-V value for (exchangeID, symbol,
// tf) under the tier-1 indicator key. kind is the indicator family, e.g.
// "macd-v".
func (s *Store) WriteIndicator(ctx context.Context, exchangeID, symbol, tf, kind string, v model.MACDVValue) error {
	return s.writeIndicatorAt(ctx, IndicatorKey(exchangeID, symbol, tf, kind, ""), v, 0)
}

// WriteIndicatorParams stores an indicator value computed from a non-default
// parameter set, scoping the key by MACDVParamsSuffix(v.Params) so a
// deployment running more than one period configuration for the same
// (symbol, tf) never overwrites the default series.
func (s *Store) WriteIndicatorParams(ctx context.Context, exchangeID, symbol, tf, kind string, v model.MACDVValue) error {
	return s.writeIndicatorAt(ctx, IndicatorKey(exchangeID, symbol, tf, kind, MACDVParamsSuffix(v.Params)), v, 0)
}

// WriteUserIndicator stores an indicator value under the tier-2 (TTL'd)
// indicator key.
func (s *Store) WriteUserIndicator(ctx context.Context, userID, exchangeID, symbol, tf, kind string, v model.MACDVValue, ttl time.Duration) error {
	return s.writeIndicatorAt(ctx, UserIndicatorKey(userID, exchangeID, symbol, tf, kind), v, ttl)
}

func (s *Store) writeIndicatorAt(ctx context.Context, key string, v model.MACDVValue, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal indicator: %w", err)
	}
	return s.exec(func() error {
		return s.rdb.Set(ctx, key, payload, ttl).Err()
	})
}

// ReadIndicator returns the latest indicator value at the tier-1 key.
func (s *Store) ReadIndicator(ctx context.Context, exchangeID, symbol, tf, kind string) (model.MACDVValue, bool, error) {
	return s.readIndicatorAt(ctx, IndicatorKey(exchangeID, symbol, tf, kind, ""))
}

func (s *Store) readIndicatorAt(ctx context.Context, key string) (model.MACDVValue, bool, error) {
	var raw string
	found := false
	err := s.exec(func() error {
		var e error
		raw, e = s.rdb.Get(ctx, key).Result()
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
		return model.MACDVValue{}, false, err
	}
	var v model.MACDVValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return model.MACDVValue{}, false, fmt.Errorf("cache: unmarshal indicator: %w", err)
	}
	return v, true, nil
}

// ClearMatching deletes every key matching pattern using SCAN + per-key DEL,
// remaining safe on a cluster-sharded deployment where keys can live on
// different slots (no multi-key DEL batching).
func (s *Store) ClearMatching(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	err := s.exec(func() error {
		iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
			deleted++
		}
		return iter.Err()
	})
	return deleted, err
}
