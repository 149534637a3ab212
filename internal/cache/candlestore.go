package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"livermore/internal/model"
)

// WriteCandle stores a candle in the tier-1 (exchange-scoped) sorted set,
// keyed by score = timestamp. addCandleIfNewer semantics: any existing
// member with the same score is removed before the new one is inserted, so
// a re-delivered close for the same timestamp replaces rather than
// duplicates.
func (s *Store) WriteCandle(ctx context.Context, exchangeID string, c model.Candle) error {
	return s.writeCandleAt(ctx, CandleKey(exchangeID, c.Symbol, c.Timeframe), c)
}

// WriteUserCandle stores a candle in the tier-2 (user-scoped overflow) set
// with a TTL attached to the key.
func (s *Store) WriteUserCandle(ctx context.Context, userID, exchangeID string, c model.Candle, ttl time.Duration) error {
	key := UserCandleKey(userID, exchangeID, c.Symbol, c.Timeframe)
	if err := s.writeCandleAt(ctx, key, c); err != nil {
		return err
	}
	return s.exec(func() error {
		return s.rdb.Expire(ctx, key, ttl).Err()
	})
}

func (s *Store) writeCandleAt(ctx context.Context, key string, c model.Candle) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cache: marshal candle: %w", err)
	}
	score := float64(c.Timestamp)
	return s.exec(func() error {
		pipe := s.rdb.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, fmt.Sprintf("%v", score), fmt.Sprintf("%v", score))
		pipe.ZAdd(ctx, key, &goredis.Z{Score: score, Member: payload})
		_, err := pipe.Exec(ctx)
		return err
	})
}

// LatestCandle returns the most recent candle for the tier-1 key, or
// (zero, false, nil) if the set is empty.
func (s *Store) LatestCandle(ctx context.Context, exchangeID, symbol, tf string) (model.Candle, bool, error) {
	var out []string
	err := s.exec(func() error {
		var e error
		out, e = s.rdb.ZRevRange(ctx, CandleKey(exchangeID, symbol, tf), 0, 0).Result()
		return e
	})
	if err != nil {
		return model.Candle{}, false, err
	}
	if len(out) == 0 {
		return model.Candle{}, false, nil
	}
	var c model.Candle
	if err := json.Unmarshal([]byte(out[0]), &c); err != nil {
		return model.Candle{}, false, fmt.Errorf("cache: unmarshal candle: %w", err)
	}
	return c, true, nil
}

// RangeCandles returns every candle at the tier-1 key with score (timestamp)
// in [fromTS, toTS], ascending.
func (s *Store) RangeCandles(ctx context.Context, exchangeID, symbol, tf string, fromTS, toTS int64) ([]model.Candle, error) {
	return s.rangeCandlesAt(ctx, CandleKey(exchangeID, symbol, tf), fromTS, toTS)
}

// LastNCandles returns up to n of the most recent candles at the tier-1 key,
// ascending by timestamp.
func (s *Store) LastNCandles(ctx context.Context, exchangeID, symbol, tf string, n int64) ([]model.Candle, error) {
	var out []string
	err := s.exec(func() error {
		var e error
		out, e = s.rdb.ZRevRange(ctx, CandleKey(exchangeID, symbol, tf), 0, n-1).Result()
		return e
	})
	if err != nil {
		return nil, err
	}
	candles, err := decodeCandles(out)
	if err != nil {
		return nil, err
	}
	reverse(candles)
	return candles, nil
}

// CandlesBefore returns up to limit candles at the tier-1 key with
// timestamp strictly less than beforeTS, newest first — the cursor-
// paginated read the public REST surface uses. beforeTS <= 0 means no
// cursor: start from the newest candle.
func (s *Store) CandlesBefore(ctx context.Context, exchangeID, symbol, tf string, beforeTS int64, limit int64) ([]model.Candle, error) {
	max := "+inf"
	if beforeTS > 0 {
		max = fmt.Sprintf("(%d", beforeTS) // exclusive upper bound
	}
	var out []string
	err := s.exec(func() error {
		var e error
		out, e = s.rdb.ZRevRangeByScore(ctx, CandleKey(exchangeID, symbol, tf), &goredis.ZRangeBy{
			Min:    "-inf",
			Max:    max,
			Offset: 0,
			Count:  limit,
		}).Result()
		return e
	})
	if err != nil {
		return nil, err
	}
	return decodeCandles(out)
}

// RangeCandlesDualRead applies the tier-1 -> legacy -> tier-2 read policy:
// it returns the first non-empty range found across the three namespaces.
func (s *Store) RangeCandlesDualRead(ctx context.Context, userID, exchangeID, symbol, tf string, fromTS, toTS int64) ([]model.Candle, error) {
	if candles, err := s.rangeCandlesAt(ctx, CandleKey(exchangeID, symbol, tf), fromTS, toTS); err != nil {
		return nil, err
	} else if len(candles) > 0 {
		return candles, nil
	}
	if candles, err := s.rangeCandlesAt(ctx, LegacyCandleKey(exchangeID, symbol, tf), fromTS, toTS); err != nil {
		return nil, err
	} else if len(candles) > 0 {
		return candles, nil
	}
	if userID == "" {
		return nil, nil
	}
	return s.rangeCandlesAt(ctx, UserCandleKey(userID, exchangeID, symbol, tf), fromTS, toTS)
}

func (s *Store) rangeCandlesAt(ctx context.Context, key string, fromTS, toTS int64) ([]model.Candle, error) {
	var out []string
	err := s.exec(func() error {
		var e error
		out, e = s.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
			Min: fmt.Sprintf("%d", fromTS),
			Max: fmt.Sprintf("%d", toTS),
		}).Result()
		return e
	})
	if err != nil {
		return nil, err
	}
	return decodeCandles(out)
}

func decodeCandles(raw []string) ([]model.Candle, error) {
	candles := make([]model.Candle, 0, len(raw))
	for _, r := range raw {
		var c model.Candle
		if err := json.Unmarshal([]byte(r), &c); err != nil {
			return nil, fmt.Errorf("cache: unmarshal candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func reverse(c []model.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}
