package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jlongo78/joe-ritchey-machining/internal/config"
	"github.com/jlongo78/joe-ritchey-machining/internal/infra"
	"github.com/jlongo78/joe-ritchey-machining/internal/metrics"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
	"github.com/jlongo78/joe-ritchey-machining/internal/router"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
	"github.com/jlongo78/joe-ritchey-machining/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in prod
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	metrics.Init(cfg.MetricsPrefix)

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// ── Composition root ─────────────────────────────────────────────────────
	feeds := infra.NewFeedGateway(infra.NewHTTPFeedClient(), infra.NewXMLRPCFeedClient(), infra.DefaultCBConfig())
	store := repository.NewStore(db)
	svcs := service.NewServices(store, feeds, infra.NewMarginReportPDF(""), service.SettingsFromConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sync jobs run on the worker pool; the scheduler only enqueues them.
	dispatcher := worker.NewDispatcher(rdb, cfg.LeaseTTL())
	pool := worker.NewPool(rdb,
		worker.NewSupplierSyncWorker(svcs.Suppliers),
		worker.NewCompetitorSyncWorker(svcs.Competitors),
	)
	pool.Start(ctx, cfg.WorkerPoolSize)

	if !cfg.SchedulerDisabled {
		worker.StartSyncScheduler(ctx, worker.SchedulerConfig{
			Suppliers:   svcs.Suppliers,
			Competitors: svcs.Competitors,
			Queue:       dispatcher,
			Interval:    time.Duration(cfg.SchedulerTickSeconds) * time.Second,
		})
	}

	r := router.New(cfg, db, rdb, feeds, svcs)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous syncs and bulk updates
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("pricing engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
