// Package exchange defines the common adapter contract shared by every
// exchange-family connector (Coinbase Advanced Trade, Binance Spot) and the
// connection lifecycle machinery (state machine, reconnect backoff,
// silence watchdog) they all embed.
package exchange

import (
	"context"
	"fmt"
)

// State is a connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateReconnecting
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Subscription records a (symbol, timeframe) pair an adapter must
// resubscribe to after a reconnect.
type Subscription struct {
	Symbol    string
	Timeframe string
}

// Adapter is the capability set every exchange connector implements.
// Adapters own their WebSocket connection exclusively: no other component
// writes to the tier-1 candle/ticker keys for symbols the adapter serves.
type Adapter interface {
	// ExchangeID is the stable identifier used in cache keys and channels.
	ExchangeID() string

	// Connect opens the WebSocket, authenticates if the exchange requires
	// it, and starts the silence watchdog. Blocks until the initial
	// handshake completes or ctx is cancelled.
	Connect(ctx context.Context) error

	// Subscribe sends subscribe frames for the candle and ticker channels
	// for the given symbols and records them for resubscribe-on-reconnect.
	Subscribe(ctx context.Context, symbols []string, timeframe string) error

	// Unsubscribe mirrors Subscribe.
	Unsubscribe(ctx context.Context, symbols []string) error

	// Disconnect marks the close as intentional (skipping reconnect logic)
	// and closes the socket.
	Disconnect(ctx context.Context) error

	// Run drives the adapter's read loop, message routing, and
	// reconnection until ctx is cancelled or a fatal error occurs.
	Run(ctx context.Context) error

	// State reports the current lifecycle state.
	State() State
}

// FatalError is surfaced to the supervisor when an adapter exhausts its
// reconnect attempts; the pipeline continues running other adapters.
type FatalError struct {
	ExchangeID string
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("exchange %s: fatal: %v", e.ExchangeID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
