// Package app wires the components shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/mirror"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/runlock"
	"catalogsync/internal/services/syncrun"
)

type App struct {
	DB        *database.Database
	Service   *syncrun.Service
	Publisher events.Publisher

	closers []func() error
	logger  *logger.Logger
}

// Build opens the database and picks the mirror store, run lock and event publisher
// the configuration asks for.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.New(cfg.DatabaseURL, database.Options{LogQueries: cfg.Env == "development"})
	if err != nil {
		return nil, err
	}
	a := &App{DB: db, logger: log}
	a.closers = append(a.closers, db.Close)

	var store mirror.Store
	if cfg.UseSupabase() {
		pg, err := mirror.NewPostgrestStore(mirror.PostgrestOptions{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Schema:     cfg.SupabaseSchema,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		store = pg
		log.Info("Product mirror: Supabase REST (%s)", cfg.SupabaseURL)
	} else {
		store = mirror.NewGormStore(db.DB)
		log.Info("Product mirror: direct database access")
	}

	var locker runlock.Locker
	if cfg.RedisURL != "" {
		rl, err := runlock.NewRedisLocker(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		locker = rl
	} else {
		log.Warn("REDIS_URL not set, sync locks are local to this process")
		locker = runlock.NewMemoryLocker()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaSyncRequestTopic, cfg.KafkaSyncEventTopic, log)
		a.closers = append(a.closers, publisher.Close)
	} else {
		log.Warn("KAFKA_BROKERS not set, background syncs are disabled")
	}
	a.Publisher = publisher

	a.Service = syncrun.NewService(db.DB, store, locker, publisher, log, syncrun.Options{
		DefaultTable: cfg.ProductsTable,
		Engine:       engineOptions(cfg),
		LockTTL:      cfg.SyncLockTTL,
		WooPageDelay: cfg.WooPageDelay,
		WooTimeout:   cfg.WooTimeout,
	})
	return a, nil
}

func engineOptions(cfg *config.Config) reconcile.Options {
	opts := reconcile.DefaultOptions()
	if cfg.SyncChunkSize > 0 {
		opts.ChunkSize = cfg.SyncChunkSize
	}
	if cfg.UploadChunkSize > 0 {
		opts.UploadChunkSize = cfg.UploadChunkSize
	}
	if cfg.SyncMaxAttempts > 0 {
		opts.MaxAttempts = cfg.SyncMaxAttempts
	}
	if cfg.SyncRetryBackoff >= 0 {
		opts.Backoff = cfg.SyncRetryBackoff
	}
	if cfg.SyncChunkPause >= 0 {
		opts.Pause = cfg.SyncChunkPause
	}
	return opts
}

// Close releases everything Build opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Shutdown: %v", err)
		}
	}
	a.closers = nil
}

// ShutdownContext bounds graceful shutdown.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
