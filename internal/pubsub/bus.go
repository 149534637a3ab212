// Package pubsub wraps go-redis's Subscribe/PSubscribe behind dedicated
// connections, matching the gateway hub's pattern of one subscriber
// connection fanning out to many internal consumers rather than opening a
// connection per listener.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// Bus publishes to and subscribes from Redis pub/sub channels.
type Bus struct {
	client *goredis.Client
}

// New wraps an existing Redis client. The cache package owns the
// connection; pubsub only borrows it for Publish and for opening dedicated
// Subscribe/PSubscribe connections.
func New(client *goredis.Client) *Bus {
	return &Bus{client: client}
}

// Publish sends a raw payload to channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// PublishJSON marshals v and publishes it to channel.
func (b *Bus) PublishJSON(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("pubsub: marshal: %w", err)
	}
	return b.Publish(ctx, channel, payload)
}

// Subscription is a dedicated connection receiving messages from one or
// more exact channels or patterns.
type Subscription struct {
	ps   *goredis.PubSub
	msgs <-chan *goredis.Message
}

// Subscribe opens a dedicated connection subscribed to the given exact
// channel names.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("pubsub: subscribe: %w", err)
	}
	return &Subscription{ps: ps, msgs: ps.Channel()}, nil
}

// PSubscribe opens a dedicated connection subscribed to the given glob
// patterns (e.g. "channel:exchange:1:candle:close:*:*").
func (b *Bus) PSubscribe(ctx context.Context, patterns ...string) (*Subscription, error) {
	ps := b.client.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("pubsub: psubscribe: %w", err)
	}
	return &Subscription{ps: ps, msgs: ps.Channel()}, nil
}

// C returns the channel of incoming messages. Each message carries both the
// exact Channel it arrived on and, for pattern subscriptions, the Pattern
// that matched.
func (s *Subscription) C() <-chan *goredis.Message {
	return s.msgs
}

// Close unsubscribes and releases the dedicated connection.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
