package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"picturecoupon/internal/cache"
	"picturecoupon/internal/config"
	"picturecoupon/internal/database"
	"picturecoupon/internal/handlers"
	"picturecoupon/internal/jobs"
	"picturecoupon/internal/log"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/queue"
	"picturecoupon/internal/repository"
	"picturecoupon/internal/server"
	"picturecoupon/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "picturecoupon-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.EnsurePostgresSchema(ctx, dbPool); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, "picturecoupon-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	meta, sqliteDB, err := openMetaStore(cfg, dbPool)
	if err != nil {
		logger.Fatal().Err(err).Str("metastore", cfg.Pictures.MetaStore).Msg("failed to open metadata store")
	}
	if err := repository.NewSettingsRepository(dbPool).Set(ctx, repository.SettingMetaStore, cfg.Pictures.MetaStore); err != nil {
		logger.Fatal().Err(err).Msg("failed to record metadata store")
	}
	cachedMeta := cache.NewHistoryCache(meta, redisClient, cfg.Pictures.CacheTTL, logger)

	handlerSet := handlers.NewHandlerSet(logger, dbPool, redisClient, objectStore, cachedMeta, cfg)
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(queue.NewProducer(redisClient, cfg.Queue.Stream), logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, sqliteDB, redisClient)
}

// openMetaStore picks where histories live. The sqlite handle is nil for
// the postgres store.
func openMetaStore(cfg *config.AppConfig, pool *pgxpool.Pool) (pictures.MetaStore, *sql.DB, error) {
	if cfg.Pictures.MetaStore == config.MetaStoreSQLite {
		db, err := database.OpenSQLite(cfg.Pictures.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteMetaRepository(db), db, nil
	}
	return repository.NewUserMetaRepository(pool), nil, nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, sqliteDB *sql.DB, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if sqliteDB != nil {
		if err := sqliteDB.Close(); err != nil {
			logger.Error().Err(err).Msg("sqlite close error")
		}
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
