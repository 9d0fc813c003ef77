package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"picturecoupon/internal/cache"
	"picturecoupon/internal/config"
	"picturecoupon/internal/database"
	"picturecoupon/internal/log"
	"picturecoupon/internal/queue"
	"picturecoupon/internal/repository"
	"picturecoupon/internal/storage"
	"picturecoupon/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, "picturecoupon-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis, "picturecoupon-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(
		repository.NewAttachmentRepository(pool),
		objectStore,
		repository.NewSessionRepository(pool),
		repository.NewSettingsRepository(pool),
		cfg.Pictures,
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Queue.Stream,
		cfg.Queue.Group,
		cfg.Queue.Consumer,
		cfg.Queue.ClaimInterval,
		logger,
		processor,
	)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
