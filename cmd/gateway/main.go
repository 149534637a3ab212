// Command gateway runs the public boundary: the REST read API and the
// whitelisted WebSocket streaming endpoint external clients connect to.
// It never writes to the cache and never talks to an exchange directly;
// it only reads what cmd/livermore has already published.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"livermore/internal/alertengine"
	"livermore/internal/cache"
	"livermore/internal/config"
	"livermore/internal/gateway"
	"livermore/internal/logger"
	"livermore/internal/metrics"
	"livermore/internal/pubsub"
	"livermore/internal/restapi"
)

func main() {
	log := logger.New("gateway", slog.LevelInfo)
	log.Info("starting")

	cfg := config.Load()

	descriptors, err := config.LoadDescriptors(cfg.DescriptorsPath)
	if err != nil {
		log.Warn("descriptors: falling back to built-in defaults", "path", cfg.DescriptorsPath, "err", err)
		descriptors = config.Default()
	}

	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	store, err := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.Error("cache: connect failed", "err", err)
		os.Exit(1)
	}
	health.SetRedisConnected(true)
	log.Info("cache store ready", "addr", cfg.RedisAddr)

	store.OnBreakerStateChange = func(from, to string) {
		var state float64
		switch to {
		case "open":
			state = 1
			prom.CacheCircuitBreakerTrips.Inc()
		case "half-open":
			state = 2
		}
		prom.CacheCircuitBreakerState.Set(state)
	}

	// This process only reads the cache and needs its own subscriber
	// connection: the command connection above is never reused for
	// subscriber mode.
	psClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	bus := pubsub.New(psClient)

	alertDB, err := alertengine.Open(cfg.AlertDBPath)
	if err != nil {
		log.Error("alert store: open failed", "err", err)
		os.Exit(1)
	}
	defer alertDB.Close()
	health.SetAlertDBOK(true)

	active := descriptors.Active()
	alertStores := make(map[string]*alertengine.Store, len(active))
	hubs := make(map[string]*gateway.Hub, len(active))

	for _, desc := range active {
		alertStores[desc.ID] = alertDB

		hub := gateway.NewHub(desc.ID, desc.Name, bus, log.With("component", "gateway-hub", "exchange", desc.Name))
		hub.OnSessionChange = func(delta int) {
			if delta > 0 {
				prom.GatewaySessionsActive.Inc()
			} else {
				prom.GatewaySessionsActive.Dec()
			}
		}
		hub.OnBackpressureDrop = func(reason string) {
			prom.GatewayBackpressureDrops.WithLabelValues(reason).Inc()
		}
		hub.OnMessageOut = func() {
			prom.GatewayMessagesOutTotal.Inc()
		}
		hubs[desc.ID] = hub

		go func(h *gateway.Hub) {
			if err := h.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("gateway hub stopped", "exchange", h.ExchangeID, "err", err)
			}
		}(hub)
	}
	log.Info("hubs started", "count", len(hubs))

	wsServer := gateway.NewServer(hubs, log.With("component", "gateway-server"))
	api := restapi.New(store, descriptors, alertStores)
	router := restapi.NewRouter(api)
	router.HandleFunc("/ws", wsServer.ServeWS)

	publicSrv := &http.Server{
		Addr:    cfg.GatewayAddr,
		Handler: router,
	}
	go func() {
		log.Info("public server listening", "addr", cfg.GatewayAddr)
		if err := publicSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("public server error", "err", err)
		}
	}()

	health.StartLivenessChecker(ctx, psClient, nil, 10*time.Second)

	<-sigCh
	log.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	publicSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	psClient.Close()

	log.Info("shutdown complete")
}
