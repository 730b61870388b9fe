package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kiiskristo/marketpulse-backend/internal/api"
	"github.com/kiiskristo/marketpulse-backend/internal/api/health"
	"github.com/kiiskristo/marketpulse-backend/internal/bootstrap"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/internal/tools"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	tracker := bootstrap.NewErrorTracker(cfg, log)
	logger.SetErrorTracker(tracker)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg, tracker, log)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	checks := map[string]health.Checker{}
	if container.Redis != nil {
		checks["redis"] = container.Redis
	}

	serverCfg := api.ServerConfig{
		Addr:              cfg.HTTP.Addr(),
		ServiceName:       cfg.App.Name,
		Version:           cfg.App.Version,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxStreamDuration: cfg.HTTP.MaxStreamDuration,
		Tools:             tools.Definitions(),
		Unconfigured:      tools.Unconfigured(*cfg),
	}
	handler := api.NewHandler(serverCfg, container.Orchestrator, container.Definitions,
		health.New(log.With("component", "health"), cfg.App.Name, cfg.App.Version, checks), log.With("component", "http"))
	server := api.NewServer(serverCfg, handler, log)

	scheduler := container.NewScheduler()
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		bootstrap.NewLifecycle(cfg.HTTP.ShutdownTimeout).Shutdown(server, scheduler, container, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		os.Exit(1)
	}
}
