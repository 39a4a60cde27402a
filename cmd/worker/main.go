package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/scheduler"
	"catalogsync/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize: %v", err)
	}
	defer deps.Close()

	// Consume queued sync requests
	var w *worker.Worker
	if len(cfg.Brokers()) > 0 {
		w = worker.New(cfg, deps.Service, deps.Publisher, logger)
		logger.Info("Starting worker...")
		go w.Start(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set, not consuming sync requests")
	}

	// Run scheduled comprehensive syncs
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(deps.DB.DB, deps.Service, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("Failed to start scheduler: %v", err)
		}
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	if sched != nil {
		sched.Stop()
	}
	if w != nil {
		w.Stop()
	}
}
