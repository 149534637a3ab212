// Package config loads the service's environment-variable configuration
// and the YAML-backed static descriptor tables (exchange descriptors,
// symbol classification) read at startup and held in memory for the
// lifetime of the process.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the process's environment-derived configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsAddr string
	GatewayAddr string

	AlertDBPath string

	// DiscordWebhookURL delivers triggered alerts to Discord. Empty
	// disables notification delivery entirely (alert records are still
	// persisted and published); see alertengine.NoopNotifier.
	DiscordWebhookURL string

	// DescriptorsPath points at the YAML file listing exchange descriptors
	// and the symbol classification table (internal/config/descriptors.go).
	DescriptorsPath string

	// IdentitySub scopes this process's control-channel command/response
	// channels. In production this is the operator's Clerk subject; for a
	// single-tenant deployment it is a fixed operator id.
	IdentitySub string

	// ControlStepUpSecret, when set, requires a TOTP code on the two
	// destructive control commands (force-backfill, clear-cache). Empty
	// disables step-up auth entirely.
	ControlStepUpSecret string

	// CoinbaseWSURL / BinanceWSURL let deployments point at sandbox
	// endpoints without a code change.
	CoinbaseWSURL string
	BinanceWSURL  string

	// CoinbaseKeyName / CoinbaseKeySecret are the Advanced Trade API key
	// pair used to sign the JWT subscribe frame. Binance's public market
	// data streams need no credentials.
	CoinbaseKeyName   string
	CoinbaseKeySecret string

	WatchdogSilence time.Duration
	ReconnectCap    time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults; no variable is required, and credentials default to empty.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr: getEnv("GATEWAY_ADDR", ":8080"),

		AlertDBPath: getEnv("ALERT_DB_PATH", "data/alerts.db"),

		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),

		DescriptorsPath: getEnv("DESCRIPTORS_PATH", "configs/descriptors.yaml"),

		IdentitySub: getEnv("IDENTITY_SUB", "operator"),

		ControlStepUpSecret: getEnv("CONTROL_STEPUP_SECRET", ""),

		CoinbaseWSURL: getEnv("COINBASE_WS_URL", "wss://advanced-trade-ws.coinbase.com"),
		BinanceWSURL:  getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443"),

		CoinbaseKeyName:   getEnv("COINBASE_KEY_NAME", ""),
		CoinbaseKeySecret: getEnv("COINBASE_KEY_SECRET", ""),

		WatchdogSilence: getEnvDuration("WATCHDOG_SILENCE", 30*time.Second),
		ReconnectCap:    getEnvDuration("RECONNECT_CAP", 5*time.Second),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

// RequireCoinbaseCredentials re-reads COINBASE_KEY_NAME/COINBASE_KEY_SECRET
// with mustEnv, terminating the process if either is missing. Call this
// only when the Coinbase adapter is actually enabled; Binance's public
// market-data streams need no credentials at all.
func (c *Config) RequireCoinbaseCredentials() {
	c.CoinbaseKeyName = mustEnv("COINBASE_KEY_NAME")
	c.CoinbaseKeySecret = mustEnv("COINBASE_KEY_SECRET")
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

// EnabledExchangesFromEnv parses a comma-separated EXCHANGES env var (e.g.
// "coinbase,binance") into a normalised, de-duplicated list.
func EnabledExchangesFromEnv() []string {
	raw := getEnv("EXCHANGES", "coinbase,binance")
	parts := strings.Split(raw, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
