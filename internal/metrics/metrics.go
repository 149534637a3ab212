// Package metrics exposes the pipeline's Prometheus instrumentation and a
// liveness/readiness endpoint: per-exchange WS reconnects, candle-close
// and aggregation counters, alert trigger/cooldown counters, control-queue
// depth, gateway session/backpressure gauges, and the /metrics + /healthz
// HTTP server both binaries mount.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the pipeline registers.
type Metrics struct {
	// Exchange adapter
	WSReconnectsTotal  *prometheus.CounterVec // labels: exchange
	WSMessagesTotal    *prometheus.CounterVec // labels: exchange, channel
	CandleClosesTotal  *prometheus.CounterVec // labels: exchange, symbol, tf
	AdapterFatalErrors *prometheus.CounterVec // labels: exchange

	// Aggregation + indicator service
	AggregationDur        *prometheus.HistogramVec // labels: tf
	IndicatorComputeTotal *prometheus.CounterVec   // labels: tf, source (cache_direct|aggregated_5m)
	ReadinessGateSkips    *prometheus.CounterVec   // labels: tf

	// Alert engine
	AlertsTriggeredTotal *prometheus.CounterVec // labels: symbol, tf, trigger_label
	AlertCooldownHits    *prometheus.CounterVec // labels: symbol, tf

	// Control channel
	ControlQueueDepth    prometheus.Gauge
	ControlCommandsTotal *prometheus.CounterVec // labels: type, status

	// Public gateway boundary
	GatewaySessionsActive    prometheus.Gauge
	GatewayBackpressureDrops *prometheus.CounterVec // labels: reason (skip|terminate)
	GatewayMessagesOutTotal  prometheus.Counter

	// Cache / circuit breaker
	CacheCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CacheCircuitBreakerTrips prometheus.Counter
	CacheOpDur               *prometheus.HistogramVec // labels: op
}

// New registers and returns every pipeline metric.
func New() *Metrics {
	m := &Metrics{
		WSReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_ws_reconnects_total",
			Help: "WebSocket reconnection attempts per exchange adapter",
		}, []string{"exchange"}),
		WSMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_ws_messages_total",
			Help: "Inbound WebSocket frames routed per exchange and channel",
		}, []string{"exchange", "channel"}),
		CandleClosesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_candle_closes_total",
			Help: "Closed candles written to the tier-1 cache",
		}, []string{"exchange", "symbol", "tf"}),
		AdapterFatalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_adapter_fatal_errors_total",
			Help: "Adapter reconnect-exhaustion events surfaced to the supervisor",
		}, []string{"exchange"}),

		AggregationDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livermore_aggregation_duration_seconds",
			Help:    "Time to aggregate 5m candles into a higher timeframe and recompute its indicator",
			Buckets: prometheus.DefBuckets,
		}, []string{"tf"}),
		IndicatorComputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_indicator_compute_total",
			Help: "MACD-V computations written to the indicator cache",
		}, []string{"tf", "source"}),
		ReadinessGateSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_readiness_gate_skips_total",
			Help: "Indicator computations skipped for having fewer than 60 candles",
		}, []string{"tf"}),

		AlertsTriggeredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_alerts_triggered_total",
			Help: "Alert records emitted by the detection engine",
		}, []string{"symbol", "tf", "trigger_label"}),
		AlertCooldownHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_alert_cooldown_hits_total",
			Help: "Level crossings or reversal candidates suppressed by an active cooldown",
		}, []string{"symbol", "tf"}),

		ControlQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livermore_control_queue_depth",
			Help: "Commands currently queued awaiting priority-ordered processing",
		}),
		ControlCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_control_commands_total",
			Help: "Control-channel commands processed, by type and terminal status",
		}, []string{"type", "status"}),

		GatewaySessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livermore_gateway_sessions_active",
			Help: "Currently connected public WebSocket sessions",
		}),
		GatewayBackpressureDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livermore_gateway_backpressure_drops_total",
			Help: "Outbound messages skipped or sessions terminated for buffered-byte backpressure",
		}, []string{"reason"}),
		GatewayMessagesOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livermore_gateway_messages_out_total",
			Help: "Outbound envelopes written to public WebSocket sessions",
		}),

		CacheCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livermore_cache_circuit_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CacheCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livermore_cache_circuit_breaker_trips_total",
			Help: "Times the cache circuit breaker tripped open",
		}),
		CacheOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livermore_cache_op_duration_seconds",
			Help:    "Redis round-trip latency by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	prometheus.MustRegister(
		m.WSReconnectsTotal,
		m.WSMessagesTotal,
		m.CandleClosesTotal,
		m.AdapterFatalErrors,
		m.AggregationDur,
		m.IndicatorComputeTotal,
		m.ReadinessGateSkips,
		m.AlertsTriggeredTotal,
		m.AlertCooldownHits,
		m.ControlQueueDepth,
		m.ControlCommandsTotal,
		m.GatewaySessionsActive,
		m.GatewayBackpressureDrops,
		m.GatewayMessagesOutTotal,
		m.CacheCircuitBreakerState,
		m.CacheCircuitBreakerTrips,
		m.CacheOpDur,
	)

	return m
}

// HealthStatus tracks the liveness of the pipeline's external
// dependencies (Redis, the alert sqlite sink) and its adapters, served at
// /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt      time.Time
	RedisConnected bool
	AlertDBOK      bool
	Adapters       map[string]bool // exchangeID -> connected

	RedisLatencyMs float64
	LastCheckAt    time.Time
}

// NewHealthStatus returns a fresh health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		Adapters:  make(map[string]bool),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetAlertDBOK(v bool) {
	h.mu.Lock()
	h.AlertDBOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetAdapterConnected(exchangeID string, connected bool) {
	h.mu.Lock()
	h.Adapters[exchangeID] = connected
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and reachability.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckAlertDB runs a trivial query against the alert sqlite database.
func (h *HealthStatus) CheckAlertDB(ctx context.Context, db *sql.DB) {
	err := db.PingContext(ctx)
	h.mu.Lock()
	h.AlertDBOK = err == nil
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, alertDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if alertDB != nil {
					h.CheckAlertDB(probeCtx, alertDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected {
		status = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.AlertDBOK {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	body := struct {
		Status         string          `json:"status"`
		Uptime         string          `json:"uptime"`
		RedisConnected bool            `json:"redis_connected"`
		RedisLatencyMs float64         `json:"redis_latency_ms"`
		AlertDBOK      bool            `json:"alert_db_ok"`
		Adapters       map[string]bool `json:"adapters"`
		LastCheckAt    string          `json:"last_check_at"`
	}{
		Status:         status,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		AlertDBOK:      h.AlertDBOK,
		Adapters:       h.Adapters,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server bound to addr.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
