package gateway

// PublicCandle is the only candle shape ever sent across the public
// boundary. Every field is named explicitly so a new internal
// model.Candle field never leaks simply by being added upstream.
type PublicCandle struct {
	Timestamp string `json:"timestamp"` // ISO 8601, UTC
	Open      string `json:"open"`      // decimal string
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// PublicSignal is the only alert/signal shape ever sent across the public
// boundary.
type PublicSignal struct {
	Symbol     string `json:"symbol"`
	Exchange   string `json:"exchange"`
	Timeframe  string `json:"timeframe"`
	SignalType string `json:"signal_type"` // momentum_signal | trend_signal
	Direction  string `json:"direction"`
	Strength   string `json:"strength"`
	Price      string `json:"price"`
	Timestamp  string `json:"timestamp"`
}

// Signal type labels the public boundary exposes. The alert engine's
// level-crossing alerts are momentum signals; a trend_signal label is
// reserved for a future detector and never emitted today.
const (
	SignalTypeMomentum = "momentum_signal"
	SignalTypeTrend    = "trend_signal"
)

// Outbound envelope types.
const (
	msgTypeCandleClose  = "candle_close"
	msgTypeTradeSignal  = "trade_signal"
	msgTypeSubscribed   = "subscribed"
	msgTypeUnsubscribed = "unsubscribed"
	msgTypeError        = "error"
)

// Error codes carried on the "code" field of an error envelope.
const (
	errCodeBadRequest = "BAD_REQUEST"
)

// inboundMessage is the only client->server frame shape: a batch
// subscribe or unsubscribe request against one or more external channel
// names.
type inboundMessage struct {
	Action   string   `json:"action"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// outboundMessage is the server->client envelope for every message this
// boundary sends: live candle_close/trade_signal events, subscribed/
// unsubscribed acknowledgements, and per-channel errors.
type outboundMessage struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Data     any      `json:"data,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
}
