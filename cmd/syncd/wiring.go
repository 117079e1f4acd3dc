package main

import (
	"context"
	"fmt"

	"bookingsync/internal/config"
	"bookingsync/internal/database"
	"bookingsync/internal/domain"
	"bookingsync/internal/google"
	"bookingsync/internal/remote"
	"bookingsync/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// resources owns everything that needs closing on exit.
type resources struct {
	db    *database.DB
	redis *redis.Client
}

func (r *resources) Close() {
	_ = repository.Close(r.redis)
	if r.db != nil {
		_ = r.db.Close()
	}
}

// openDatabase opens the sqlite file when a path is configured. It holds the
// sqlite cache and the cycle audit trail.
func openDatabase(cfg *config.Config, res *resources, logger *zerolog.Logger) error {
	if cfg.Database.Path == "" {
		return nil
	}
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	res.db = db
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, error) {
	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client, nil
}

// buildCache selects the durable cache backend.
func buildCache(ctx context.Context, cfg *config.Config, res *resources, logger *zerolog.Logger) (domain.OfflineCache, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		logger.Warn().Msg("memory cache backend: pending operations will not survive a restart")
		return repository.NewMemoryCacheRepository(), nil

	case config.CacheBackendSQLite:
		return database.NewOfflineCache(res.db), nil

	case config.CacheBackendRedis:
		client, err := initRedis(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		res.redis = client
		return repository.NewRedisCacheRepository(client, cfg.Cache.RedisKeyPrefix), nil

	case config.CacheBackendFailover:
		fallback := database.NewOfflineCache(res.db)
		// redis may be down at start; the failover cache recovers on its own
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable at start, using sqlite until it recovers")
		}
		res.redis = client
		primary := repository.NewRedisCacheRepository(client, cfg.Cache.RedisKeyPrefix)
		return repository.NewFailoverCacheRepository(primary, fallback, logger), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// buildRemote selects the remote store driver.
func buildRemote(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.RemoteStore, error) {
	switch cfg.Remote.Driver {
	case config.RemoteDriverHTTP:
		logger.Info().Str("base_url", cfg.Remote.BaseURL).Msg("using HTTP remote store")
		return remote.NewHTTPStore(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.APIExtra, cfg.Remote.Timeout()), nil

	case config.RemoteDriverSheets:
		g := cfg.Remote.Google
		store, err := google.NewSheetsStore(ctx, g.GoogleCredentialsFile, g.SpreadsheetID)
		if err != nil {
			return nil, fmt.Errorf("google sheets: %w", err)
		}
		if email, err := google.ServiceAccountEmail(g.GoogleCredentialsFile); err == nil {
			logger.Info().Str("service_account", email).Str("spreadsheet_id", g.SpreadsheetID).Msg("using Google Sheets remote store")
		}
		return store, nil

	case config.RemoteDriverMemory:
		logger.Warn().Msg("memory remote store: committed operations are kept in process only")
		return remote.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
}
