// Command livermore runs the ingestion and analysis side of the pipeline:
// every exchange adapter, the aggregation+indicator service, the alert
// detection engine, and the control channel that pauses/resumes/reconfigures
// them, all wired through the stored service registry.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"livermore/internal/aggindicator"
	"livermore/internal/alertengine"
	"livermore/internal/cache"
	"livermore/internal/config"
	"livermore/internal/control"
	"livermore/internal/exchange"
	"livermore/internal/exchange/binance"
	"livermore/internal/exchange/coinbase"
	"livermore/internal/logger"
	"livermore/internal/metrics"
	"livermore/internal/pubsub"
	"livermore/internal/registry"
)

func main() {
	log := logger.New("livermore", slog.LevelInfo)
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

	// pubsub gets its own dedicated Redis connection: the command connection
	// owned by cache.Store is never reused for subscriber mode.
	psClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	bus := pubsub.New(psClient)

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

	if err := os.MkdirAll(filepath.Dir(cfg.AlertDBPath), 0o755); err != nil {
		log.Error("alert store: mkdir failed", "err", err)
		os.Exit(1)
	}
	alertDB, err := alertengine.Open(cfg.AlertDBPath)
	if err != nil {
		log.Error("alert store: open failed", "err", err)
		os.Exit(1)
	}
	defer alertDB.Close()
	health.SetAlertDBOK(true)
	log.Info("alert record store ready", "path", cfg.AlertDBPath)

	var notifier alertengine.Notifier = alertengine.NoopNotifier{}
	if cfg.DiscordWebhookURL != "" {
		notifier = alertengine.NewDiscordWebhookNotifier(cfg.DiscordWebhookURL)
	} else {
		log.Info("alert notifications disabled (no DISCORD_WEBHOOK_URL)")
	}

	reg := registry.New(log, "live")

	adapters := make(map[string]exchange.Adapter)

	for _, desc := range descriptors.Active() {
		exchangeIDForSink := desc.ID
		sink := &exchange.Sink{Store: store, Bus: bus, Log: log}
		sink.OnCandleClose = func(exchangeID, symbol, tf string) {
			prom.CandleClosesTotal.WithLabelValues(exchangeID, symbol, tf).Inc()
		}

		var adapter exchange.Adapter
		switch desc.Name {
		case "coinbase":
			cb := coinbase.New(coinbase.Config{
				WSURL:        cfg.CoinbaseWSURL,
				KeyName:      cfg.CoinbaseKeyName,
				KeySecret:    cfg.CoinbaseKeySecret,
				Silence:      cfg.WatchdogSilence,
				ReconnectCap: cfg.ReconnectCap,
			}, sink, log.With("exchange", desc.Name))
			cb.OnReconnect = func() { prom.WSReconnectsTotal.WithLabelValues(exchangeIDForSink).Inc() }
			cb.OnFatal = func() { prom.AdapterFatalErrors.WithLabelValues(exchangeIDForSink).Inc() }
			adapter = cb
		case "binance":
			bn := binance.New(binance.Config{
				WSBaseURL:    cfg.BinanceWSURL,
				Silence:      cfg.WatchdogSilence,
				ReconnectCap: cfg.ReconnectCap,
			}, sink, log.With("exchange", desc.Name))
			bn.OnReconnect = func() { prom.WSReconnectsTotal.WithLabelValues(exchangeIDForSink).Inc() }
			bn.OnFatal = func() { prom.AdapterFatalErrors.WithLabelValues(exchangeIDForSink).Inc() }
			adapter = bn
		default:
			log.Warn("descriptors: unknown exchange adapter family, skipping", "name", desc.Name)
			continue
		}

		adapters[desc.ID] = adapter

		exchangeID, exchangeDesc, adapterLog := desc.ID, desc, log.With("exchange", desc.Name)
		reg.Register("adapter:"+desc.Name, func(ctx context.Context) error {
			if err := adapter.Connect(ctx); err != nil {
				return err
			}
			symbols := descriptors.ClassifyTier1(exchangeID)
			if err := adapter.Subscribe(ctx, symbols, "5m"); err != nil {
				return err
			}
			health.SetAdapterConnected(exchangeID, true)
			defer health.SetAdapterConnected(exchangeID, false)
			adapterLog.Info("adapter subscribed", "symbols", symbols, "exchangeId", exchangeDesc.ID)
			return adapter.Run(ctx)
		})

		aggSvc := aggindicator.New(desc.ID, store, bus, log.With("component", "aggindicator", "exchange", desc.Name))
		aggSvc.OnCompute = func(tf, source string) {
			prom.IndicatorComputeTotal.WithLabelValues(tf, source).Inc()
		}
		aggSvc.OnGateSkip = func(tf string) {
			prom.ReadinessGateSkips.WithLabelValues(tf).Inc()
		}
		reg.Register("aggindicator:"+desc.Name, aggSvc.Run)

		alertEngine := alertengine.New(desc.ID, bus, store, alertDB, notifier, log.With("component", "alertengine", "exchange", desc.Name))
		alertEngine.OnAlert = func(symbol, tf, label string) {
			prom.AlertsTriggeredTotal.WithLabelValues(symbol, tf, label).Inc()
		}
		alertEngine.OnCooldownHit = func(symbol, tf string) {
			prom.AlertCooldownHits.WithLabelValues(symbol, tf).Inc()
		}
		reg.Register("alertengine:"+desc.Name, alertEngine.Run)
	}

	reg.StartAll(ctx)
	log.Info("pipeline started", "exchanges", len(adapters))

	controller := control.New(cfg.IdentitySub, bus, store, reg, cfg.ControlStepUpSecret, log.With("component", "control"))
	controller.Adapters = adapters
	controller.OnQueueDepth = func(n int) { prom.ControlQueueDepth.Set(float64(n)) }
	controller.OnCommand = func(cmdType, status string) { prom.ControlCommandsTotal.WithLabelValues(cmdType, status).Inc() }

	go func() {
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("control channel stopped", "err", err)
		}
	}()
	log.Info("control channel ready", "identitySub", cfg.IdentitySub)

	health.StartLivenessChecker(ctx, psClient, nil, 10*time.Second)

	<-sigCh
	log.Info("shutdown signal received")
	cancel()
	reg.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	psClient.Close()

	log.Info("shutdown complete")
}
