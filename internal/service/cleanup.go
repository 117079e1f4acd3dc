package service

import (
	"context"
	"fmt"
	"sort"

	"bookingsync/internal/domain"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

var _ domain.Cleaner = (*CleanupService)(nil)

// CleanupService keeps the durable cache in step with the queue: Remember on
// submit, Forget once committed, Restore on start-up.
type CleanupService struct {
	cache  domain.OfflineCache
	logger *zerolog.Logger
}

func NewCleanupService(cache domain.OfflineCache, logger *zerolog.Logger) *CleanupService {
	return &CleanupService{
		cache:  cache,
		logger: logging.Component(logger, "cleanup"),
	}
}

// Forget deletes the cache entry of a committed operation. Missing entries
// are not an error.
func (s *CleanupService) Forget(ctx context.Context, kind models.Kind, naturalKey string) error {
	key := models.OperationKey{Kind: kind, NaturalKey: naturalKey}.CacheKey()
	if err := s.cache.Remove(ctx, key); err != nil {
		metrics.IncCleanupFailure()
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// Remember writes op to the durable cache.
func (s *CleanupService) Remember(ctx context.Context, op models.Operation) error {
	data, err := models.EncodeOperation(op)
	if err != nil {
		return err
	}
	key := op.Key().CacheKey()
	if err := s.cache.Set(ctx, key, data); err != nil {
		return fmt.Errorf("remember %s: %w", key, err)
	}
	return nil
}

// Restore returns every cached operation ordered by enqueue time. Entries
// that cannot be decoded are logged and skipped.
func (s *CleanupService) Restore(ctx context.Context) ([]models.Operation, error) {
	entries, err := s.cache.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("restore offline cache: %w", err)
	}

	ops := make([]models.Operation, 0, len(entries))
	for _, e := range entries {
		op, err := models.DecodeOperation(e.Value)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", e.Key).Msg("Skipping unreadable cache entry")
			continue
		}
		if op.Key().CacheKey() != e.Key {
			s.logger.Warn().Str("key", e.Key).Str("decoded", op.Key().CacheKey()).Msg("Cache key does not match operation")
		}
		ops = append(ops, op)
	}

	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].EnqueuedAt.Before(ops[j].EnqueuedAt)
	})
	return ops, nil
}
