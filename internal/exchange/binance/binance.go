// Package binance implements the Binance Spot WebSocket adapter: combined
// kline/miniTicker streams, unauthenticated public market data, with the
// exchange's own "x" (closed) flag taken as ground truth for candle
// closure. Binance has no in-band subscribe frame for combined streams:
// the stream list is fixed in the dial URL, so Subscribe/Unsubscribe
// redial with the updated list.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livermore/internal/exchange"
	"livermore/internal/model"
)

const exchangeID = "2"

// Config configures one Binance adapter instance.
type Config struct {
	WSBaseURL    string // e.g. "wss://stream.binance.com:9443"
	Silence      time.Duration
	ReconnectCap time.Duration
}

// Adapter is the Binance Spot connector.
type Adapter struct {
	cfg  Config
	sink *exchange.Sink
	log  *slog.Logger

	mu            sync.Mutex
	state         exchange.State
	conn          *websocket.Conn
	intentional   bool
	subscriptions map[exchange.Subscription]struct{}

	watchdog *exchange.Watchdog
	backoff  *exchange.Backoff

	// OnReconnect and OnFatal, when set, record Prometheus counters without
	// this package importing internal/metrics directly.
	OnReconnect func()
	OnFatal     func()
}

// New builds an unconnected adapter.
func New(cfg Config, sink *exchange.Sink, log *slog.Logger) *Adapter {
	if cfg.Silence <= 0 {
		cfg.Silence = 30 * time.Second
	}
	return &Adapter{
		cfg:           cfg,
		sink:          sink,
		log:           log,
		state:         exchange.StateDisconnected,
		subscriptions: make(map[exchange.Subscription]struct{}),
		backoff:       exchange.NewBackoff(500*time.Millisecond, cfg.ReconnectCap),
	}
}

func (a *Adapter) ExchangeID() string { return exchangeID }
func (a *Adapter) State() exchange.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(s exchange.State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Connect dials the combined-stream endpoint for every symbol/channel
// recorded so far. Binance requires the full stream list up front rather
// than an in-band subscribe frame after connect, so Connect is a no-op
// until the first Subscribe call supplies the stream list; subsequent
// reconnects redial with the accumulated subscription set.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	subs := a.streamList()
	a.mu.Unlock()
	if len(subs) == 0 {
		a.setState(exchange.StateConnected)
		return nil
	}
	return a.dial(ctx, subs)
}

func (a *Adapter) dial(ctx context.Context, streams []string) error {
	a.setState(exchange.StateConnecting)
	url := a.cfg.WSBaseURL + "/stream?streams=" + strings.Join(streams, "/")
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		a.setState(exchange.StateDisconnected)
		return fmt.Errorf("binance: dial: %w", err)
	}
	a.mu.Lock()
	old := a.conn
	a.conn = conn
	a.intentional = false
	a.mu.Unlock()
	if old != nil {
		old.Close()
	}
	a.setState(exchange.StateConnected)
	a.backoff.Reset()

	a.watchdog = exchange.NewWatchdog(a.cfg.Silence, func() {
		a.log.Warn("binance: watchdog fired, forcing reconnect")
		a.forceClose()
	})
	return nil
}

func (a *Adapter) streamList() []string {
	byTF := make(map[string][]string)
	for s := range a.subscriptions {
		byTF[s.Timeframe] = append(byTF[s.Timeframe], s.Symbol)
	}
	out := make([]string, 0, len(a.subscriptions)*2)
	for tf, symbols := range byTF {
		interval := binanceInterval(tf)
		for _, sym := range symbols {
			lower := strings.ToLower(sym)
			out = append(out, fmt.Sprintf("%s@kline_%s", lower, interval))
			out = append(out, fmt.Sprintf("%s@miniTicker", lower))
		}
	}
	return out
}

// Run drives the read loop until ctx is cancelled or a fatal error occurs.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		if err := a.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.mu.Lock()
			intentional := a.intentional
			a.mu.Unlock()
			if intentional {
				return nil
			}
			a.setState(exchange.StateReconnecting)
			if ferr := a.reconnect(ctx); ferr != nil {
				return ferr
			}
			continue
		}
		return nil
	}
}

func (a *Adapter) readLoop(ctx context.Context) error {
	for {
		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("binance: no connection")
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Subscribe/Unsubscribe redial with a new stream list and close
			// the old socket; pick up the replacement instead of treating
			// the swap as a drop.
			a.mu.Lock()
			replaced := a.conn != conn
			a.mu.Unlock()
			if replaced {
				continue
			}
			return err
		}
		if a.watchdog != nil {
			a.watchdog.Kick()
		}
		a.handleMessage(ctx, raw)
	}
}

func (a *Adapter) forceClose() {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

const maxReconnectAttempts = 20

func (a *Adapter) reconnect(ctx context.Context) error {
	for a.backoff.Attempt() < maxReconnectAttempts {
		delay := a.backoff.Next()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if a.OnReconnect != nil {
			a.OnReconnect()
		}
		a.mu.Lock()
		streams := a.streamList()
		a.mu.Unlock()
		if err := a.dial(ctx, streams); err != nil {
			a.log.Warn("binance: reconnect attempt failed", "attempt", a.backoff.Attempt(), "err", err)
			continue
		}
		return nil
	}
	if a.OnFatal != nil {
		a.OnFatal()
	}
	return &exchange.FatalError{ExchangeID: exchangeID, Err: fmt.Errorf("max reconnect attempts (%d) exceeded", maxReconnectAttempts)}
}

// Subscribe records symbols for timeframe and redials with the expanded
// stream list, since Binance combined streams are fixed at connect time.
func (a *Adapter) Subscribe(ctx context.Context, symbols []string, timeframe string) error {
	a.mu.Lock()
	for _, s := range symbols {
		a.subscriptions[exchange.Subscription{Symbol: s, Timeframe: timeframe}] = struct{}{}
	}
	streams := a.streamList()
	a.mu.Unlock()

	if err := a.dial(ctx, streams); err != nil {
		return err
	}
	a.setState(exchange.StateSubscribed)
	return nil
}

// Unsubscribe removes symbols and redials with the shrunk stream list.
func (a *Adapter) Unsubscribe(ctx context.Context, symbols []string) error {
	a.mu.Lock()
	for s := range a.subscriptions {
		for _, sym := range symbols {
			if s.Symbol == sym {
				delete(a.subscriptions, s)
			}
		}
	}
	streams := a.streamList()
	a.mu.Unlock()
	if len(streams) == 0 {
		return a.Disconnect(ctx)
	}
	return a.dial(ctx, streams)
}

// Disconnect marks the close as intentional and closes the socket.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.setState(exchange.StateDisconnecting)
	a.mu.Lock()
	a.intentional = true
	conn := a.conn
	a.mu.Unlock()
	if a.watchdog != nil {
		a.watchdog.Stop()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("binance: close: %w", err)
		}
	}
	a.setState(exchange.StateDisconnected)
	return nil
}

func binanceInterval(tf string) string {
	switch tf {
	case "1m", "5m", "15m", "1h", "4h", "1d":
		return tf
	default:
		return "5m"
	}
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

type miniTickerFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

func (a *Adapter) handleMessage(ctx context.Context, raw []byte) {
	var frame combinedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		a.log.Warn("binance: malformed frame", "err", err)
		return
	}
	var eventType struct {
		E string `json:"e"`
	}
	if err := json.Unmarshal(frame.Data, &eventType); err != nil {
		a.log.Warn("binance: malformed event payload", "err", err)
		return
	}
	switch eventType.E {
	case "kline":
		a.handleKline(ctx, frame.Data)
	case "24hrMiniTicker":
		a.handleMiniTicker(ctx, frame.Data)
	default:
		a.log.Warn("binance: unknown event type, dropping", "type", eventType.E)
	}
}

func (a *Adapter) handleKline(ctx context.Context, raw json.RawMessage) {
	var f klineFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		a.log.Warn("binance: malformed kline", "err", err)
		return
	}
	candle, err := toCandle(f.Symbol, f.Kline.Interval, f.Kline.StartTime, f.Kline.Open, f.Kline.High, f.Kline.Low, f.Kline.Close, f.Kline.Volume)
	if err != nil {
		a.log.Warn("binance: kline parse failed", "err", err)
		return
	}
	a.sink.WriteCandle(ctx, exchangeID, candle, f.Kline.IsClosed)
}

func (a *Adapter) handleMiniTicker(ctx context.Context, raw json.RawMessage) {
	var f miniTickerFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		a.log.Warn("binance: malformed miniTicker", "err", err)
		return
	}
	ticker, err := toTicker(f.Symbol, f.Close, f.Open, f.High, f.Low, f.Volume)
	if err != nil {
		a.log.Warn("binance: miniTicker parse failed", "err", err)
		return
	}
	a.sink.WriteTicker(ctx, exchangeID, ticker)
}

func toCandle(symbol, timeframe string, startMs int64, open, high, low, close, volume string) (model.Candle, error) {
	o, err1 := strconv.ParseFloat(open, 64)
	h, err2 := strconv.ParseFloat(high, 64)
	l, err3 := strconv.ParseFloat(low, 64)
	c, err4 := strconv.ParseFloat(close, 64)
	v, err5 := strconv.ParseFloat(volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return model.Candle{}, fmt.Errorf("parse ohlcv")
	}
	return model.Candle{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: startMs,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}, nil
}

func toTicker(symbol, close, open, high, low, volume string) (model.Ticker, error) {
	c, err1 := strconv.ParseFloat(close, 64)
	o, err2 := strconv.ParseFloat(open, 64)
	h, err3 := strconv.ParseFloat(high, 64)
	l, err4 := strconv.ParseFloat(low, 64)
	v, err5 := strconv.ParseFloat(volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return model.Ticker{}, fmt.Errorf("parse ticker fields")
	}
	change := c - o
	var changePct float64
	if o != 0 {
		changePct = (change / o) * 100
	}
	return model.Ticker{
		Symbol:           symbol,
		Price:            c,
		Change24h:        change,
		ChangePercent24h: changePct,
		Volume24h:        v,
		Low24h:           l,
		High24h:          h,
		Timestamp:        time.Now().UnixMilli(),
	}, nil
}
