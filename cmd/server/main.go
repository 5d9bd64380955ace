package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/eth-terminal/internal/collector"
	"github.com/web3-frozen/eth-terminal/internal/config"
	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/funds"
	"github.com/web3-frozen/eth-terminal/internal/handler"
	"github.com/web3-frozen/eth-terminal/internal/kv"
	"github.com/web3-frozen/eth-terminal/internal/middleware"
	"github.com/web3-frozen/eth-terminal/internal/monitor"
	"github.com/web3-frozen/eth-terminal/internal/monitor/sources"
	"github.com/web3-frozen/eth-terminal/internal/render"
	"github.com/web3-frozen/eth-terminal/internal/store"
	"github.com/web3-frozen/eth-terminal/internal/terminal"
)

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	schedules, err := config.LoadSchedules(cfg.ScheduleFile, cfg.ETFFlowsEnabled)
	if err != nil {
		logger.Error("failed to load schedules", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Snapshot history (optional)
	var rec store.Recorder = store.NoopRecorder{}
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected and migrated")

		coll := collector.New(db, logger)
		rec = coll
		wg.Add(1)
		go func() {
			defer wg.Done()
			coll.Run(ctx)
		}()
	} else {
		logger.Warn("DATABASE_URL not set, snapshot history disabled")
	}
	defer rec.Close()

	// Key-value store (retry up to 30s for ExternalSecret to sync)
	var kvs kv.KV = kv.NewMemory()
	if cfg.RedisURL != "" {
		var rs *kv.Store
		for i := 0; i < 6; i++ {
			rs, err = kv.New(cfg.RedisURL, cfg.RedisPassword)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer rs.Close() //nolint:errcheck
		kvs = rs
		logger.Info("redis connected")
	} else {
		logger.Warn("REDIS_URL not set, using in-memory store")
	}

	fundSvc := funds.NewService(kvs, logger)
	if err := fundSvc.Seed(ctx); err != nil {
		logger.Error("failed to seed funds", "error", err)
	}

	// Render chain: document, live subscribers, tile cache
	doc, err := render.DefaultDocument()
	if err != nil {
		logger.Error("failed to parse terminal page", "error", err)
		os.Exit(1)
	}
	tileCache := kv.NewTileCache(kvs)
	board := render.NewBoard(logger, doc, tileCache)
	hub := render.NewHub(logger, board.Tiles, middleware.Origins(cfg.FrontendOrigin))
	board.AddTarget(hub)
	if saved, err := tileCache.Load(ctx); err != nil {
		logger.Warn("failed to load cached tiles", "error", err)
	} else {
		board.Restore(ctx, saved)
		logger.Info("restored cached tiles", "count", len(saved))
	}

	charts := render.NewCharts()
	book := dataset.NewBook()
	presenter := terminal.New(board, charts, book, logger)
	presenter.RenderFlows(ctx, 0)

	// Monitoring engine
	engine := monitor.NewEngine(rec, logger, presenter.OnSnapshot, &monitor.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	for _, src := range []monitor.Source{
		sources.NewStakingRewards(cfg.StakingRewardsKey),
		sources.NewStakingHistory(cfg.StakingRewardsKey),
		sources.NewCoinGeckoMarket(cfg.CoinGeckoKey),
		sources.NewCoinGeckoCategories(cfg.CoinGeckoKey, cfg.CoinGeckoCategory),
		sources.NewDefiLlama(),
		sources.NewGrowthepie(),
		sources.NewFarside(logger, book),
	} {
		engine.Register(src, schedules[src.Name()])
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(rec, kvs))

	r.Get("/", handler.Page(doc, logger))
	r.Get("/ws", hub.ServeHTTP)
	r.Get("/fund", handler.FundPage(fundSvc, logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/tiles", handler.Tiles(board))
		r.Get("/flows", handler.Flows(book))
		r.Get("/charts/{name}", handler.Chart(charts))
		r.Get("/funds", handler.ListFunds(fundSvc))
		r.Get("/funds/{id}", handler.GetFund(fundSvc))
		r.Get("/stats", handler.Stats(engine))
		r.Get("/stats/meta", handler.StatsMetadata(engine))
		r.Post("/refresh/{source}", handler.Refresh(engine))
		r.Get("/history", handler.History(rec))
	})

	// No WriteTimeout: /ws connections are long-lived and bound their own writes.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	wg.Wait()
}
