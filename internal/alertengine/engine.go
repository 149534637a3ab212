// Package alertengine subscribes to indicator updates and performs
// stateful level-crossing and reversal-signal detection per (symbol,
// timeframe) series, persisting a record and notifying externally on
// every trigger.
package alertengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"livermore/internal/cache"
	"livermore/internal/model"
	"livermore/internal/pubsub"
)

const indicatorKind = "macd-v"

// oversoldLevels and overboughtLevels are the candidate crossing ladder,
// ordered from the first (shallowest) to the last (deepest) level.
var oversoldLevels = []float64{-150, -200, -250, -300, -350, -400}
var overboughtLevels = []float64{150, 200, 250, 300, 350, 400}

const defaultCooldown = 5 * time.Minute

type seriesKey struct {
	symbol string
	tf     string
}

// seriesState is the per-(symbol, tf) detection state: the previous
// macdV observation, per-level cooldown expiries, and the reversal state
// for the current excursion.
type seriesState struct {
	mu               sync.Mutex
	hasPrevious      bool
	previousMacdV    float64
	alertedLevels    map[float64]time.Time
	reversalState    bool
	reversalCooldown time.Time
	lastLabel        string
}

// Engine is the per-exchange alert detection worker. It subscribes to
// indicator updates, detects level crossings and reversals against the
// per-series state, and on each trigger writes an alert record, notifies,
// and publishes on the exchange-scoped alert channel.
type Engine struct {
	ExchangeID string
	Bus        *pubsub.Bus
	Cache      *cache.Store // read-only, for the trigger-time close price
	Records    *Store
	Notifier   Notifier
	Log        *slog.Logger
	Cooldown   time.Duration

	// OnAlert and OnCooldownHit, when set, record Prometheus counters
	// without this package importing internal/metrics directly.
	OnAlert       func(symbol, tf, label string)
	OnCooldownHit func(symbol, tf string)

	mu     sync.Mutex
	series map[seriesKey]*seriesState
}

// New builds an Engine with the default 5-minute cooldown.
func New(exchangeID string, bus *pubsub.Bus, cacheStore *cache.Store, records *Store, notifier Notifier, log *slog.Logger) *Engine {
	return &Engine{
		ExchangeID: exchangeID,
		Bus:        bus,
		Cache:      cacheStore,
		Records:    records,
		Notifier:   notifier,
		Log:        log,
		Cooldown:   defaultCooldown,
		series:     make(map[seriesKey]*seriesState),
	}
}

// Run subscribes to every MACD-V indicator update for the engine's exchange
// and processes them until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	sub, err := e.Bus.PSubscribe(ctx, cache.IndicatorChannelPattern(e.ExchangeID, indicatorKind))
	if err != nil {
		return fmt.Errorf("alertengine: subscribe: %w", err)
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
			go e.handleMessageSafely(ctx, msg)
		}
	}
}

func (e *Engine) handleMessageSafely(ctx context.Context, msg *goredis.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.Log.Error("alertengine: panic handling indicator update", "channel", msg.Channel, "recovered", r)
		}
	}()
	if err := e.handleUpdate(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
		e.Log.Error("alertengine: handle update failed", "channel", msg.Channel, "err", err)
	}
}

func (e *Engine) handleUpdate(ctx context.Context, channel string, payload []byte) error {
	symbol, tf, ok := cache.ParseIndicatorChannel(channel)
	if !ok {
		return nil
	}
	var v model.MACDVValue
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("unmarshal indicator update: %w", err)
	}
	return e.evaluate(ctx, symbol, tf, v)
}

// evaluate runs the detection rules for one indicator update. Kept separate
// from handleUpdate so tests can call it directly, bypassing the pub/sub
// transport entirely.
func (e *Engine) evaluate(ctx context.Context, symbol, tf string, v model.MACDVValue) error {
	st := e.stateFor(symbol, tf)

	st.mu.Lock()
	if !st.hasPrevious {
		st.previousMacdV = v.MACDV
		st.hasPrevious = true
		st.mu.Unlock()
		return nil // first update for this series: nothing to compare against
	}
	prev := st.previousMacdV
	cur := v.MACDV
	st.previousMacdV = cur
	now := time.UnixMilli(v.Timestamp)

	previousLabel := st.lastLabel
	labels := e.levelCrossings(st, symbol, tf, prev, cur, now)
	if len(labels) == 0 {
		if label, fired := e.reversal(st, cur, v.Histogram, now); fired {
			labels = []string{label}
		}
	}
	if len(labels) > 0 {
		st.lastLabel = labels[len(labels)-1]
	}
	st.mu.Unlock()

	for _, label := range labels {
		if err := e.trigger(ctx, symbol, tf, v, label, previousLabel); err != nil {
			return err
		}
		previousLabel = label
	}
	return nil
}

// levelCrossings evaluates both ladders and returns every level strictly
// crossed this tick whose cooldown is not active. Caller holds st.mu.
func (e *Engine) levelCrossings(st *seriesState, symbol, tf string, prev, cur float64, now time.Time) []string {
	var labels []string
	for _, level := range oversoldLevels {
		if prev >= level && cur < level {
			if e.cooldownActive(st, level, now) {
				e.hitCooldown(symbol, tf)
				continue
			}
			st.alertedLevels[level] = now
			st.reversalState = false // entering a new extreme re-arms reversal detection
			labels = append(labels, levelLabel(level))
		}
	}
	for _, level := range overboughtLevels {
		if prev <= level && cur > level {
			if e.cooldownActive(st, level, now) {
				e.hitCooldown(symbol, tf)
				continue
			}
			st.alertedLevels[level] = now
			st.reversalState = false
			labels = append(labels, levelLabel(level))
		}
	}
	return labels
}

func (e *Engine) hitCooldown(symbol, tf string) {
	if e.OnCooldownHit != nil {
		e.OnCooldownHit(symbol, tf)
	}
}

func (e *Engine) cooldownActive(st *seriesState, level float64, now time.Time) bool {
	last, ok := st.alertedLevels[level]
	if !ok {
		return false
	}
	return now.Sub(last) < e.Cooldown
}

// reversal evaluates the asymmetric reversal-signal rule. Caller holds st.mu.
func (e *Engine) reversal(st *seriesState, cur, histogram float64, now time.Time) (string, bool) {
	if st.reversalState || now.Before(st.reversalCooldown) {
		return "", false
	}
	switch {
	case cur < -150:
		buffer := math.Abs(cur) * 0.05
		if histogram > buffer {
			st.reversalState = true
			st.reversalCooldown = now.Add(e.Cooldown)
			return "reversal_oversold", true
		}
	case cur > 150:
		buffer := math.Abs(cur) * 0.03
		if histogram < -buffer {
			st.reversalState = true
			st.reversalCooldown = now.Add(e.Cooldown)
			return "reversal_overbought", true
		}
	}
	return "", false
}

func levelLabel(level float64) string {
	return fmt.Sprintf("level_%d", int(level))
}

// snapshotTimeframes are the series captured into an alert's details blob,
// giving the notification reader the symbol's momentum picture across every
// computed timeframe at trigger time.
var snapshotTimeframes = []string{"5m", "15m", "1h", "4h", "1d"}

// timeframesSnapshot renders the current macdV per timeframe as a compact
// JSON object, best-effort: timeframes with no cached value or a failed
// read are omitted rather than blocking the trigger path, and the result
// is empty only when no timeframe yields a value.
func (e *Engine) timeframesSnapshot(ctx context.Context, symbol string) string {
	if e.Cache == nil {
		return ""
	}
	snap := make(map[string]float64, len(snapshotTimeframes))
	for _, tf := range snapshotTimeframes {
		v, found, err := e.Cache.ReadIndicator(ctx, e.ExchangeID, symbol, tf, indicatorKind)
		if err != nil || !found {
			continue
		}
		snap[tf] = v.MACDV
	}
	if len(snap) == 0 {
		return ""
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (e *Engine) stateFor(symbol, tf string) *seriesState {
	key := seriesKey{symbol: symbol, tf: tf}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.series[key]
	if !ok {
		st = &seriesState{alertedLevels: make(map[float64]time.Time)}
		e.series[key] = st
	}
	return st
}

func (e *Engine) trigger(ctx context.Context, symbol, tf string, v model.MACDVValue, label, previousLabel string) error {
	var closePrice float64
	if e.Cache != nil {
		if c, found, err := e.Cache.LatestCandle(ctx, e.ExchangeID, symbol, tf); err == nil && found {
			closePrice = c.Close
		}
	}

	record := model.AlertRecord{
		ID:            uuid.New().String(),
		ExchangeID:    e.ExchangeID,
		Symbol:        symbol,
		Timeframe:     tf,
		AlertType:     "macdv",
		TriggeredAt:   v.Timestamp,
		Price:         closePrice,
		TriggerValue:  v.MACDV,
		TriggerLabel:  label,
		PreviousLabel: previousLabel,
		Details: model.AlertDetails{
			Histogram:          v.Histogram,
			Signal:             v.Signal,
			TimeframesSnapshot: e.timeframesSnapshot(ctx, symbol),
		},
	}
	record.Details.Direction = record.PublicDirection()

	if e.OnAlert != nil {
		e.OnAlert(symbol, tf, label)
	}

	if e.Notifier != nil {
		if err := e.Notifier.Notify(ctx, record); err != nil {
			e.Log.Error("alertengine: notification failed", "symbol", symbol, "timeframe", tf, "label", label, "err", err)
			record.NotificationError = err.Error()
		} else {
			record.NotificationSent = true
		}
	}

	if e.Records != nil {
		if err := e.Records.Insert(record); err != nil {
			return fmt.Errorf("persist alert record: %w", err)
		}
	}

	if e.Bus != nil {
		if err := e.Bus.PublishJSON(ctx, cache.AlertChannel(e.ExchangeID), record); err != nil {
			e.Log.Error("alertengine: publish alert failed", "symbol", symbol, "timeframe", tf, "err", err)
		}
	}
	return nil
}
