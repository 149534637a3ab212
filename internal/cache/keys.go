// Package cache owns all Redis key and channel naming for the pipeline and
// provides small typed stores on top of go-redis: a sorted-set candle store,
// a TTL'd ticker store, and an indicator store. No other package constructs
// key strings.
package cache

import (
	"strconv"
	"strings"

	"livermore/internal/model"
)

// CandleKey returns the tier-1 (exchange-scoped, shared) candle key.
func CandleKey(exchangeID, symbol, tf string) string {
	return "candles:" + exchangeID + ":" + symbol + ":" + tf
}

// UserCandleKey returns the tier-2 (user-scoped overflow, TTL'd) candle key.
func UserCandleKey(userID, exchangeID, symbol, tf string) string {
	return "usercandles:" + userID + ":" + exchangeID + ":" + symbol + ":" + tf
}

// LegacyCandleKey is the pre-tiering key consulted during dual-read rollout.
func LegacyCandleKey(exchangeID, symbol, tf string) string {
	return "legacy:candles:" + exchangeID + ":" + symbol + ":" + tf
}

// IndicatorKey returns the tier-1 indicator key. sortedParams, when present,
// is appended verbatim and must already be in caller-sorted order so the key
// is stable regardless of param map iteration order.
func IndicatorKey(exchangeID, symbol, tf, kind string, sortedParams string) string {
	k := "indicator:" + exchangeID + ":" + symbol + ":" + tf + ":" + kind
	if sortedParams != "" {
		k += ":" + sortedParams
	}
	return k
}

// UserIndicatorKey returns the tier-2 indicator key (TTL'd).
func UserIndicatorKey(userID, exchangeID, symbol, tf, kind string) string {
	return "userindicator:" + userID + ":" + exchangeID + ":" + symbol + ":" + tf + ":" + kind
}

// MACDVParamsSuffix renders a MACD-V parameter set into the stable,
// caller-sorted suffix IndicatorKey expects, so two callers configuring the
// same periods always address the same key regardless of struct field
// order.
func MACDVParamsSuffix(p model.MACDVParams) string {
	return strconv.Itoa(p.Fast) + "-" + strconv.Itoa(p.Slow) + "-" + strconv.Itoa(p.ATRPeriod) + "-" + strconv.Itoa(p.Signal)
}

// TickerKey returns the ticker key; tickers have no tier-2 form.
func TickerKey(exchangeID, symbol string) string {
	return "ticker:" + exchangeID + ":" + symbol
}

// TickerChannel is the pub/sub channel an exchange adapter publishes
// ticker updates to.
func TickerChannel(exchangeID, symbol string) string {
	return "channel:ticker:" + exchangeID + ":" + symbol
}

// CandleCloseChannel is the pub/sub channel an exchange adapter publishes
// to when a candle for (symbol, tf) closes.
func CandleCloseChannel(exchangeID, symbol, tf string) string {
	return "channel:exchange:" + exchangeID + ":candle:close:" + symbol + ":" + tf
}

// CandleClosePattern is the PSubscribe pattern matching every candle-close
// channel for an exchange.
func CandleClosePattern(exchangeID string) string {
	return "channel:exchange:" + exchangeID + ":candle:close:*:*"
}

// IndicatorChannel is the pub/sub channel the aggregation+indicator service
// publishes a recalculated value to, mirroring IndicatorKey's scoping.
func IndicatorChannel(exchangeID, symbol, tf, kind string) string {
	return "channel:indicator:" + exchangeID + ":" + symbol + ":" + tf + ":" + kind
}

// IndicatorChannelPattern is the PSubscribe pattern the alert engine uses to
// receive every indicator update for one exchange and indicator kind,
// across every symbol and timeframe.
func IndicatorChannelPattern(exchangeID, kind string) string {
	return "channel:indicator:" + exchangeID + ":*:*:" + kind
}

// ParseIndicatorChannel extracts (symbol, tf) from a channel name matching
// IndicatorChannelPattern; ok is false if the channel does not have the
// expected shape.
func ParseIndicatorChannel(channel string) (symbol, tf string, ok bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 6 || parts[0] != "channel" || parts[1] != "indicator" {
		return "", "", false
	}
	return parts[3], parts[4], true
}

// AlertChannel is the pub/sub channel the alert engine publishes triggered
// alerts to, scoped per exchange.
func AlertChannel(exchangeID string) string {
	return "channel:alerts:exchange:" + exchangeID
}

// CommandChannel is the control-channel inbound command channel for a given
// caller identity subject.
func CommandChannel(identitySub string) string {
	return "livermore:commands:" + identitySub
}

// ResponseChannel is the control-channel outbound response channel paired
// with CommandChannel.
func ResponseChannel(identitySub string) string {
	return "livermore:responses:" + identitySub
}

// ParseCandleCloseChannel extracts (symbol, tf) from a channel name matching
// CandleClosePattern; ok is false if the channel does not have the expected
// shape.
func ParseCandleCloseChannel(channel string) (symbol, tf string, ok bool) {
	const marker = ":candle:close:"
	idx := strings.Index(channel, marker)
	if idx < 0 {
		return "", "", false
	}
	rest := channel[idx+len(marker):]
	parts := strings.Split(rest, ":")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
