// Command matchengine runs the matchmaking scheduler against the
// configured rules document and ticket store, together with the
// notification fan-out and the reference socket collaborator it
// delivers through, exposing Prometheus metrics for operators.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yadneshx17/matchmakingEngine/server"
	"github.com/yadneshx17/matchmakingEngine/server/socketref"
)

func main() {
	rulesPath := flag.String("rules", "rules.yaml", "path to the per-mode rules document")
	configPath := flag.String("config", "engine.yaml", "path to the engine configuration document")
	flag.Parse()

	cfg, err := server.LoadEngineConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := server.NewLogger(cfg.LogPath, false)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rules, err := server.LoadRulesRegistry(*rulesPath)
	if err != nil {
		logger.Fatal("loading rules document", zap.Error(err))
	}

	var store server.Store = server.NewMemoryStore(cfg.TicketTTL)
	var sweeper *server.PostgresStore
	if cfg.StoreEndpoint != "" {
		pg, err := server.NewPostgresStore(cfg.StoreEndpoint, cfg.TicketTTL)
		if err != nil {
			logger.Fatal("opening postgres store", zap.Error(err))
		}
		if err := pg.Migrate(); err != nil {
			logger.Fatal("migrating postgres store", zap.Error(err))
		}
		logger.Info("using postgres ticket store")
		store = pg
		sweeper = pg
	}

	run(cfg, rules, store, sweeper, logger)
}

func run(cfg server.EngineConfig, rules *server.RulesRegistry, store server.Store, sweeper *server.PostgresStore, logger *zap.Logger) {
	bus := server.NewBus(logger)

	mx, registry, err := server.NewMetrics("matchengine")
	if err != nil {
		logger.Fatal("building metrics", zap.Error(err))
	}

	engine := server.NewEngine(rules, store, bus, cfg, server.SystemClock{}, logger, mx)
	hub := socketref.NewHub(logger)
	notifier := server.NewNotifier(hub, hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received, finishing in-flight round")
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/ws", hub)
		mux.HandleFunc("/dashboard", hub.ServeDashboard)
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Warn("http server stopped", zap.Error(err))
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		notifier.Run(ctx, bus.Subscribe(server.ChannelMatchFound))
	}()
	go func() {
		defer wg.Done()
		dashboard := bus.Subscribe(server.ChannelDashboard)
		for {
			select {
			case evt := <-dashboard:
				hub.BroadcastDashboard(evt)
			case <-ctx.Done():
				return
			}
		}
	}()

	if sweeper != nil {
		go func() {
			ticker := time.NewTicker(cfg.TicketTTL / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n, err := sweeper.SweepExpired(ctx); err != nil {
						logger.Warn("ticket sweep failed", zap.Error(err))
					} else if n > 0 {
						logger.Info("swept expired tickets", zap.Int64("count", n))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	logger.Info("matchengine running", zap.Duration("tick_interval", cfg.TickInterval))
	engine.Run(ctx)
	wg.Wait()
	logger.Info("matchengine stopped")
}
