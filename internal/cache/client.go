package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Store's connection to Redis.
type Config struct {
	Addr     string
	Password string
	DB       int

	// CircuitMaxFailures is the number of consecutive failures before the
	// breaker trips open. Zero selects a default of 5.
	CircuitMaxFailures int
	// CircuitResetTimeout is how long the breaker stays open before
	// allowing a single probe request through. Zero selects 10s.
	CircuitResetTimeout time.Duration
}

// Store is the cache layer's façade over Redis: candle, ticker, and
// indicator stores, all guarded by a shared circuit breaker so a Redis
// outage degrades call sites uniformly instead of each retrying blindly.
type Store struct {
	rdb     *goredis.Client
	breaker *circuitBreaker
	log     *slog.Logger

	// OnBreakerStateChange, when set, is invoked alongside the breaker's own
	// warning log so a caller can record a metric without this package
	// importing internal/metrics directly.
	OnBreakerStateChange func(from, to string)
}

// New connects to Redis and verifies reachability with a bounded ping.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	maxFailures := cfg.CircuitMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	resetTimeout := cfg.CircuitResetTimeout
	if resetTimeout == 0 {
		resetTimeout = 10 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	s := &Store{
		rdb:     rdb,
		breaker: newCircuitBreaker(maxFailures, resetTimeout),
		log:     log,
	}
	s.breaker.OnStateChange = func(from, to string) {
		if log != nil {
			log.Warn("cache circuit breaker transition", "from", from, "to", to)
		}
		if s.OnBreakerStateChange != nil {
			s.OnBreakerStateChange(from, to)
		}
	}
	return s, nil
}

// Client exposes the underlying go-redis client for components that need
// raw pub/sub access (internal/pubsub) rather than the typed stores here.
func (s *Store) Client() *goredis.Client { return s.rdb }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) exec(fn func() error) error {
	return s.breaker.execute(fn)
}
