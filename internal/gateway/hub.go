// Package gateway is the public streaming boundary: a WebSocket endpoint
// serving IP-protective, whitelisted candle and signal events to external
// clients, one shared Redis subscriber per exchange fanning out to every
// connected session. Every inbound event passes through transform.go's
// whitelist transformer before it is held or fanned out; the hub keeps a
// last-value cache per channel so a newly subscribed session sees current
// state without waiting for the next close.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"livermore/internal/cache"
	"livermore/internal/model"
	"livermore/internal/pubsub"
)

// allowedTimeframes is the public boundary's timeframe allow-list; an
// external subscribe request naming anything else is rejected.
var allowedTimeframes = map[string]bool{
	"1m": true, "5m": true, "15m": true, "1h": true, "4h": true, "1d": true,
}

// symbolPattern matches the public boundary's symbol syntax, e.g.
// "BTC-USD". The wildcard "*" is checked separately.
var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9]+-[A-Za-z0-9]+$`)

// Hub owns one exchange's internal subscriptions and fans transformed
// events out to every session subscribed to a matching external channel.
type Hub struct {
	ExchangeID   string
	ExchangeName string
	Bus          *pubsub.Bus
	Log          *slog.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}

	latestMu sync.RWMutex
	latest   map[string]json.RawMessage // external channel -> last payload, for new-session replay

	// OnSessionChange, OnBackpressureDrop, and OnMessageOut, when set,
	// record Prometheus gauges/counters without this package importing
	// internal/metrics directly.
	OnSessionChange    func(delta int)
	OnBackpressureDrop func(reason string)
	OnMessageOut       func()
}

// NewHub builds a Hub for one exchange. exchangeName is the public-facing
// label (e.g. "coinbase") rendered into PublicSignal.Exchange.
func NewHub(exchangeID, exchangeName string, bus *pubsub.Bus, log *slog.Logger) *Hub {
	return &Hub{
		ExchangeID:   exchangeID,
		ExchangeName: exchangeName,
		Bus:          bus,
		Log:          log,
		sessions:     make(map[*Session]struct{}),
		latest:       make(map[string]json.RawMessage),
	}
}

// Run subscribes to this exchange's candle-close and alert channels and
// fans every event out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	candles, err := h.Bus.PSubscribe(ctx, cache.CandleClosePattern(h.ExchangeID))
	if err != nil {
		return err
	}
	defer candles.Close()

	alerts, err := h.Bus.Subscribe(ctx, cache.AlertChannel(h.ExchangeID))
	if err != nil {
		return err
	}
	defer alerts.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-candles.C():
			if !ok {
				return nil
			}
			h.handleCandle(msg.Payload)
		case msg, ok := <-alerts.C():
			if !ok {
				return nil
			}
			h.handleAlert(msg.Payload)
		}
	}
}

func (h *Hub) handleCandle(payload string) {
	var c model.Candle
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		if h.Log != nil {
			h.Log.Error("gateway: unmarshal candle close", "err", err)
		}
		return
	}
	channel := externalChannel("candles", c.Symbol, c.Timeframe)
	raw, err := json.Marshal(outboundMessage{
		Type:    msgTypeCandleClose,
		Channel: channel,
		Data:    TransformCandle(c),
	})
	if err != nil {
		return
	}
	h.broadcast("candles", c.Symbol, c.Timeframe, raw)
}

func (h *Hub) handleAlert(payload string) {
	var a model.AlertRecord
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		if h.Log != nil {
			h.Log.Error("gateway: unmarshal alert", "err", err)
		}
		return
	}
	channel := externalChannel("signals", a.Symbol, a.Timeframe)
	raw, err := json.Marshal(outboundMessage{
		Type:    msgTypeTradeSignal,
		Channel: channel,
		Data:    TransformAlert(h.ExchangeName, a),
	})
	if err != nil {
		return
	}
	h.broadcast("signals", a.Symbol, a.Timeframe, raw)
}

func externalChannel(kind, symbol, tf string) string {
	return kind + ":" + symbol + ":" + tf
}

func (h *Hub) broadcast(kind, symbol, tf string, payload json.RawMessage) {
	h.latestMu.Lock()
	h.latest[externalChannel(kind, symbol, tf)] = payload
	h.latestMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if s.matches(kind, symbol, tf) {
			s.deliver(payload)
		}
	}
}

// register adds a session once its connection is established.
func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	if h.OnSessionChange != nil {
		h.OnSessionChange(1)
	}
}

// unregister removes a session on disconnect.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	if h.OnSessionChange != nil {
		h.OnSessionChange(-1)
	}
}

// SessionCount reports how many sessions are currently attached.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// parseExternalChannel splits "candles:BTC-USD:1h" into its (kind, symbol,
// tf) parts. kind must be "candles" or "signals"; symbol/tf may be "*".
func parseExternalChannel(channel string) (kind, symbol, tf string, ok bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 {
		return "", "", "", false
	}
	kind = parts[0]
	if kind != "candles" && kind != "signals" {
		return "", "", "", false
	}
	symbol, tf = parts[1], parts[2]
	if symbol != "*" && !symbolPattern.MatchString(symbol) {
		return "", "", "", false
	}
	if tf != "*" && !allowedTimeframes[tf] {
		return "", "", "", false
	}
	return kind, symbol, tf, true
}

// matchesPart compares a subscription segment against an event segment,
// treating "*" as a wildcard on either side.
func matchesPart(sub, actual string) bool {
	return sub == "*" || sub == actual
}
