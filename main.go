package main

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"task-manager/api"
	"task-manager/config"
	"task-manager/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	store, report := storage.Open(ctx, backend, logger)
	switch {
	case report.ReadOnly:
		logger.WithError(report.Err).Error("saved tasks unreadable, changes are refused until they can be loaded")
	case report.Status == storage.LoadDiscarded:
		logger.WithError(report.Err).Warn("starting with an empty task list")
	}

	var deduper api.Deduper
	if cfg.RedisConnectionString != "" {
		redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, store, deduper, logger)

	logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Backend, "tasks": store.Len()}).Info("task manager listening")
	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}

// openBackend builds the persistence backend selected by cfg.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return storage.NewFileBackend(cfg.TasksFile)
	case config.BackendTable:
		tb, err := storage.NewTableBackend(cfg.ConnectionString, cfg.TasksTable, cfg.TasksPartition)
		if err != nil {
			return nil, err
		}
		if err := tb.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("ensure table %q: %w", cfg.TasksTable, err)
		}
		return tb, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
