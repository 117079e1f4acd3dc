package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ domain.OfflineCache = (*RedisCacheRepository)(nil)

const redisIndexKey = "index"

// RedisCacheRepository stores cache entries as plain redis strings under a
// namespace prefix. A sorted set keeps insertion order for List.
type RedisCacheRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisCacheRepository(client *redis.Client, prefix string) *RedisCacheRepository {
	return &RedisCacheRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *RedisCacheRepository) entryKey(key string) string {
	return r.prefix + "entry:" + key
}

func (r *RedisCacheRepository) indexKey() string {
	return r.prefix + redisIndexKey
}

func (r *RedisCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}
	return val, true, nil
}

func (r *RedisCacheRepository) Set(ctx context.Context, key string, value []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.entryKey(key), value, 0)
		pipe.ZAddNX(ctx, r.indexKey(), redis.Z{Score: float64(r.now().UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) Remove(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.entryKey(key))
		pipe.ZRem(ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entry from redis: %w", err)
	}
	return nil
}

// List returns entries with the given key prefix in insertion order.
func (r *RedisCacheRepository) List(ctx context.Context, prefix string) ([]domain.CacheEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	members, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index from redis: %w", err)
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	entryKeys := make([]string, len(keys))
	for i, k := range keys {
		entryKeys[i] = r.entryKey(k)
	}
	values, err := r.client.MGet(ctx, entryKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entries from redis: %w", err)
	}

	entries := make([]domain.CacheEntry, 0, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// индекс пережил саму запись
			continue
		}
		entries = append(entries, domain.CacheEntry{Key: keys[i], Value: []byte(s)})
	}
	return entries, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
