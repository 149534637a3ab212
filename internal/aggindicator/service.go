// Package aggindicator is the aggregation + indicator calculation service:
// it subscribes to 5-minute candle-close events, recalculates the 5-minute
// MACD-V directly from cache, determines which higher timeframes also
// closed at the same boundary, aggregates and recalculates those too, and
// publishes every result on its own indicator channel. Calculations are
// cache-only: the service never holds candle state of its own, so duplicate
// close events just recompute the same value.
package aggindicator

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"livermore/internal/cache"
	"livermore/internal/indicator"
	"livermore/internal/model"
	"livermore/internal/pubsub"
	"livermore/internal/timeutil"
)

const (
	sourceTimeframe = "5m"
	indicatorKind   = "macd-v"
)

// higherTimeframes lists every timeframe the service rolls up from the
// 5-minute source, in ascending order.
var higherTimeframes = []string{"15m", "1h", "4h", "1d"}

// requiredCount is the readiness gate's bar count; the service fetches one
// bar more than this (requiredCount+1 source bars, or target groups) for
// each recalculation.
const requiredCount = model.MinBarsForReadiness

// Service is one running aggregation+indicator worker, scoped to a single
// exchange's candle-close channel.
type Service struct {
	ExchangeID string
	Store      *cache.Store
	Bus        *pubsub.Bus
	Log        *slog.Logger
	Params     model.MACDVParams

	// OnCompute and OnGateSkip, when set, record Prometheus counters
	// without this package importing internal/metrics directly.
	OnCompute  func(tf, source string)
	OnGateSkip func(tf string)
}

// New builds a Service with the default MACD-V parameters.
func New(exchangeID string, store *cache.Store, bus *pubsub.Bus, log *slog.Logger) *Service {
	return &Service{
		ExchangeID: exchangeID,
		Store:      store,
		Bus:        bus,
		Log:        log,
		Params:     model.DefaultMACDVParams(),
	}
}

// Run subscribes to every candle-close event for the service's exchange and
// processes them until ctx is cancelled. Each message is dispatched to its
// own goroutine so a slow calculation never stalls the subscriber
// connection; a panic or error in one message is caught and logged, never
// propagated to the caller.
func (s *Service) Run(ctx context.Context) error {
	sub, err := s.Bus.PSubscribe(ctx, cache.CandleClosePattern(s.ExchangeID))
	if err != nil {
		return fmt.Errorf("aggindicator: subscribe: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			go s.handleMessageSafely(ctx, msg)
		}
	}
}

func (s *Service) handleMessageSafely(ctx context.Context, msg *goredis.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("aggindicator: panic handling candle close", "channel", msg.Channel, "recovered", r)
		}
	}()
	if err := s.handleClose(ctx, msg.Channel); err != nil {
		s.Log.Error("aggindicator: handle close failed", "channel", msg.Channel, "err", err)
	}
}

func (s *Service) handleClose(ctx context.Context, channel string) error {
	symbol, tf, ok := cache.ParseCandleCloseChannel(channel)
	if !ok || tf != sourceTimeframe {
		return nil
	}

	latest, found, err := s.Store.LatestCandle(ctx, s.ExchangeID, symbol, sourceTimeframe)
	if err != nil {
		return fmt.Errorf("read latest 5m candle: %w", err)
	}
	if !found {
		return nil
	}

	if err := s.recalculate5m(ctx, symbol); err != nil {
		return err
	}

	sourceMs, err := timeutil.TimeframeToMs(sourceTimeframe)
	if err != nil {
		return err
	}
	for _, tf := range higherTimeframes {
		closed, err := timeutil.Closed(latest.Timestamp, sourceMs, tf)
		if err != nil {
			return err
		}
		if !closed {
			continue
		}
		if err := s.recalculateHigher(ctx, symbol, tf); err != nil {
			s.Log.Error("aggindicator: higher timeframe recalculation failed", "symbol", symbol, "timeframe", tf, "err", err)
		}
	}
	return nil
}

func (s *Service) recalculate5m(ctx context.Context, symbol string) error {
	candles, err := s.Store.LastNCandles(ctx, s.ExchangeID, symbol, sourceTimeframe, requiredCount+1)
	if err != nil {
		return fmt.Errorf("read 5m series: %w", err)
	}
	s.Log.Debug("aggindicator: recalculating", "symbol", symbol, "timeframe", sourceTimeframe, "source", "cache_direct", "bars", len(candles))
	return s.calculateAndPublish(ctx, symbol, sourceTimeframe, "cache_direct", candles)
}

func (s *Service) recalculateHigher(ctx context.Context, symbol, tf string) error {
	factor, err := timeutil.Factor(sourceTimeframe, tf)
	if err != nil {
		return err
	}
	fetchN := (requiredCount + 1) * factor
	source, err := s.Store.LastNCandles(ctx, s.ExchangeID, symbol, sourceTimeframe, fetchN)
	if err != nil {
		return fmt.Errorf("read 5m source series: %w", err)
	}
	// A dropped 5m bar would otherwise leave its target group permanently
	// incomplete; the synthetic fill carries through to the aggregate's
	// IsSynthetic flag.
	source, err = timeutil.FillGaps(source, sourceTimeframe)
	if err != nil {
		return fmt.Errorf("fill gaps: %w", err)
	}
	aggregated, err := timeutil.Aggregate(source, sourceTimeframe, tf)
	if err != nil {
		return fmt.Errorf("aggregate to %s: %w", tf, err)
	}
	s.Log.Debug("aggindicator: recalculating", "symbol", symbol, "timeframe", tf, "source", "aggregated_5m", "bars", len(aggregated))
	return s.calculateAndPublish(ctx, symbol, tf, "aggregated_5m", aggregated)
}

func (s *Service) calculateAndPublish(ctx context.Context, symbol, tf, source string, candles []model.Candle) error {
	if len(candles) < model.MinBarsForReadiness {
		s.Log.Debug("aggindicator: insufficient data, skipping", "symbol", symbol, "timeframe", tf, "bars", len(candles))
		if s.OnGateSkip != nil {
			s.OnGateSkip(tf)
		}
		return nil
	}
	series := indicator.MACDV(candles, s.Params)
	i := len(series) - 1
	if !indicator.Ready(series, i) {
		s.Log.Debug("aggindicator: not ready at latest bar", "symbol", symbol, "timeframe", tf)
		if s.OnGateSkip != nil {
			s.OnGateSkip(tf)
		}
		return nil
	}
	v := series[i]
	v.Stage = model.DeriveStage(v.MACDV)
	v.Params = s.Params

	// Non-default parameter sets (a deployment running more than one
	// MACD-V configuration) get their own key suffix so they never
	// collide with the default series for the same (symbol, tf).
	var writeErr error
	if s.Params != model.DefaultMACDVParams() {
		writeErr = s.Store.WriteIndicatorParams(ctx, s.ExchangeID, symbol, tf, indicatorKind, v)
	} else {
		writeErr = s.Store.WriteIndicator(ctx, s.ExchangeID, symbol, tf, indicatorKind, v)
	}
	if writeErr != nil {
		return fmt.Errorf("write indicator: %w", writeErr)
	}
	channel := cache.IndicatorChannel(s.ExchangeID, symbol, tf, indicatorKind)
	if err := s.Bus.PublishJSON(ctx, channel, v); err != nil {
		return fmt.Errorf("publish indicator: %w", err)
	}
	if s.OnCompute != nil {
		s.OnCompute(tf, source)
	}
	return nil
}
