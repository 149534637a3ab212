// Package coinbase implements the Coinbase Advanced Trade WebSocket
// adapter: JWT-authenticated subscribe frames for the "candles" and
// "ticker" channels, normalised into the internal candle/ticker model and
// handed to the shared exchange.Sink. Coinbase's candles channel carries
// no closed flag, so closure is inferred from strict timestamp advance
// per series.
package coinbase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"livermore/internal/exchange"
	"livermore/internal/model"
)

const exchangeID = "1"

// Config configures one Coinbase adapter instance.
type Config struct {
	WSURL        string
	KeyName      string
	KeySecret    string // PEM-encoded EC private key
	Silence      time.Duration
	ReconnectCap time.Duration
}

// Adapter is the Coinbase Advanced Trade connector.
type Adapter struct {
	cfg  Config
	sink *exchange.Sink
	log  *slog.Logger

	mu            sync.Mutex
	state         exchange.State
	conn          *websocket.Conn
	intentional   bool
	subscriptions map[exchange.Subscription]struct{}
	lastTimestamp map[string]int64 // seriesKey -> last seen candle ts, for the strict-advance closed marker

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
		lastTimestamp: make(map[string]int64),
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

// Connect dials the Coinbase Advanced Trade WebSocket endpoint and starts
// the silence watchdog. Authentication happens per-subscribe-frame (each
// subscribe message carries its own short-lived JWT), matching Coinbase's
// actual protocol, rather than at connect time.
func (a *Adapter) Connect(ctx context.Context) error {
	a.setState(exchange.StateConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.WSURL, nil)
	if err != nil {
		a.setState(exchange.StateDisconnected)
		return fmt.Errorf("coinbase: dial: %w", err)
	}
	a.mu.Lock()
	a.conn = conn
	a.intentional = false
	a.mu.Unlock()
	a.setState(exchange.StateConnected)
	a.backoff.Reset()

	a.watchdog = exchange.NewWatchdog(a.cfg.Silence, func() {
		a.log.Warn("coinbase: watchdog fired, forcing reconnect")
		a.forceClose()
	})
	return nil
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
			return fmt.Errorf("coinbase: no connection")
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
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
		if err := a.Connect(ctx); err != nil {
			a.log.Warn("coinbase: reconnect attempt failed", "attempt", a.backoff.Attempt(), "err", err)
			continue
		}
		a.resubscribeAll(ctx)
		return nil
	}
	if a.OnFatal != nil {
		a.OnFatal()
	}
	return &exchange.FatalError{ExchangeID: exchangeID, Err: fmt.Errorf("max reconnect attempts (%d) exceeded", maxReconnectAttempts)}
}

func (a *Adapter) resubscribeAll(ctx context.Context) {
	a.mu.Lock()
	subs := make([]exchange.Subscription, 0, len(a.subscriptions))
	for s := range a.subscriptions {
		subs = append(subs, s)
	}
	a.mu.Unlock()

	byTF := make(map[string][]string)
	for _, s := range subs {
		byTF[s.Timeframe] = append(byTF[s.Timeframe], s.Symbol)
	}
	for tf, symbols := range byTF {
		if err := a.Subscribe(ctx, symbols, tf); err != nil {
			a.log.Error("coinbase: resubscribe failed", "timeframe", tf, "err", err)
		}
	}
}

// Subscribe sends candles and ticker subscribe frames for the given
// symbols and records them for resubscribe-on-reconnect.
func (a *Adapter) Subscribe(ctx context.Context, symbols []string, timeframe string) error {
	for _, channel := range []string{"candles", "ticker"} {
		if err := a.sendSubscribeFrame(channel, symbols, "subscribe"); err != nil {
			return err
		}
	}
	a.mu.Lock()
	for _, s := range symbols {
		a.subscriptions[exchange.Subscription{Symbol: s, Timeframe: timeframe}] = struct{}{}
	}
	a.mu.Unlock()
	a.setState(exchange.StateSubscribed)
	return nil
}

// Unsubscribe mirrors Subscribe.
func (a *Adapter) Unsubscribe(ctx context.Context, symbols []string) error {
	for _, channel := range []string{"candles", "ticker"} {
		if err := a.sendSubscribeFrame(channel, symbols, "unsubscribe"); err != nil {
			return err
		}
	}
	a.mu.Lock()
	for s := range a.subscriptions {
		for _, sym := range symbols {
			if s.Symbol == sym {
				delete(a.subscriptions, s)
			}
		}
	}
	a.mu.Unlock()
	return nil
}

// Disconnect marks the close as intentional so the read loop does not
// attempt to reconnect, then closes the socket.
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
			return fmt.Errorf("coinbase: close: %w", err)
		}
	}
	a.setState(exchange.StateDisconnected)
	return nil
}

type subscribeFrame struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channel    string   `json:"channel"`
	JWT        string   `json:"jwt,omitempty"`
}

func (a *Adapter) sendSubscribeFrame(channel string, symbols []string, typ string) error {
	frame := subscribeFrame{Type: typ, ProductIDs: symbols, Channel: channel}
	if a.cfg.KeyName != "" && a.cfg.KeySecret != "" {
		token, err := signJWT(a.cfg.KeyName, a.cfg.KeySecret)
		if err != nil {
			return fmt.Errorf("coinbase: sign jwt: %w", err)
		}
		frame.JWT = token
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("coinbase: marshal subscribe frame: %w", err)
	}
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("coinbase: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// signJWT builds the ES256 JWT Coinbase's Advanced Trade WebSocket API
// requires on every subscribe frame: a 2-minute-lived token identifying
// the API key, per Coinbase's documented "sub"/"iss"/"nbf"/"exp" claim set.
func signJWT(keyName, pemKey string) (string, error) {
	block, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return "", fmt.Errorf("parse EC private key: %w", err)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": keyName,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = keyName
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	token.Header["nonce"] = nonce
	return token.SignedString(block)
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf), nil
}

type candleEvent struct {
	Channel string `json:"channel"`
	Events  []struct {
		Type    string `json:"type"`
		Candles []struct {
			Start     string `json:"start"`
			High      string `json:"high"`
			Low       string `json:"low"`
			Open      string `json:"open"`
			Close     string `json:"close"`
			Volume    string `json:"volume"`
			ProductID string `json:"product_id"`
		} `json:"candles"`
	} `json:"events"`
}

type tickerEvent struct {
	Channel string `json:"channel"`
	Events  []struct {
		Type    string `json:"type"`
		Tickers []struct {
			ProductID             string `json:"product_id"`
			Price                 string `json:"price"`
			Volume24h             string `json:"volume_24_h"`
			Low24h                string `json:"low_24_h"`
			High24h               string `json:"high_24_h"`
			PriceChangePercent24h string `json:"price_percent_chg_24_h"`
		} `json:"tickers"`
	} `json:"events"`
}

func (a *Adapter) handleMessage(ctx context.Context, raw []byte) {
	var base struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		a.log.Warn("coinbase: malformed frame", "err", err)
		return
	}
	switch base.Channel {
	case "candles":
		a.handleCandles(ctx, raw)
	case "ticker":
		a.handleTicker(ctx, raw)
	case "heartbeats", "subscriptions":
		// expected, no-op
	default:
		a.log.Warn("coinbase: unknown channel, dropping", "channel", base.Channel)
	}
}

func (a *Adapter) handleCandles(ctx context.Context, raw []byte) {
	var evt candleEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		a.log.Warn("coinbase: malformed candle frame", "err", err)
		return
	}
	for _, e := range evt.Events {
		for _, c := range e.Candles {
			candle, err := toCandle(c.ProductID, c.Start, c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				a.log.Warn("coinbase: candle parse failed", "err", err)
				continue
			}
			seriesKey := candle.Key(exchangeID)
			a.mu.Lock()
			prev, seen := a.lastTimestamp[seriesKey]
			closed := seen && candle.Timestamp > prev
			a.lastTimestamp[seriesKey] = candle.Timestamp
			a.mu.Unlock()
			// The first observation of a series can't prove closure by
			// strict advance; treat it as not-yet-closed so we never
			// publish a partial first bar.
			a.sink.WriteCandle(ctx, exchangeID, candle, closed)
		}
	}
}

func (a *Adapter) handleTicker(ctx context.Context, raw []byte) {
	var evt tickerEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		a.log.Warn("coinbase: malformed ticker frame", "err", err)
		return
	}
	for _, e := range evt.Events {
		if e.Type != "update" {
			continue // only updates drive downstream writes, not snapshots
		}
		for _, t := range e.Tickers {
			ticker, err := toTicker(t.ProductID, t.Price, t.Volume24h, t.Low24h, t.High24h, t.PriceChangePercent24h)
			if err != nil {
				a.log.Warn("coinbase: ticker parse failed", "err", err)
				continue
			}
			a.sink.WriteTicker(ctx, exchangeID, ticker)
		}
	}
}

func toCandle(productID, startSec, open, high, low, close, volume string) (model.Candle, error) {
	startUnix, err := strconv.ParseInt(startSec, 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse start: %w", err)
	}
	o, err1 := strconv.ParseFloat(open, 64)
	h, err2 := strconv.ParseFloat(high, 64)
	l, err3 := strconv.ParseFloat(low, 64)
	c, err4 := strconv.ParseFloat(close, 64)
	v, err5 := strconv.ParseFloat(volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return model.Candle{}, fmt.Errorf("parse ohlcv")
	}
	return model.Candle{
		Symbol:    productID,
		Timeframe: "5m",
		Timestamp: startUnix * 1000,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}, nil
}

func toTicker(productID, price, volume24h, low24h, high24h, changePct string) (model.Ticker, error) {
	p, err1 := strconv.ParseFloat(price, 64)
	v, err2 := strconv.ParseFloat(volume24h, 64)
	l, err3 := strconv.ParseFloat(low24h, 64)
	h, err4 := strconv.ParseFloat(high24h, 64)
	pct, err5 := strconv.ParseFloat(changePct, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return model.Ticker{}, fmt.Errorf("parse ticker fields")
	}
	return model.Ticker{
		Symbol:           productID,
		Price:            p,
		Volume24h:        v,
		Low24h:           l,
		High24h:          h,
		ChangePercent24h: pct,
		Timestamp:        time.Now().UnixMilli(),
	}, nil
}
