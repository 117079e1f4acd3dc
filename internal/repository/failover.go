package repository

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bookingsync/internal/domain"

	"github.com/rs/zerolog"
)

var _ domain.OfflineCache = (*FailoverCacheRepository)(nil)

const (
	defaultRecoverAfter = time.Minute
	// tombstonePrefix marks fallback entries that record a removal the
	// primary missed. They are replayed against the primary once it answers.
	tombstonePrefix = "tombstone:"
)

func tombstoneKey(key string) string {
	return tombstonePrefix + key
}

// FailoverCacheRepository writes to primary while it is healthy and to
// fallback once it fails. Reads and removals consult both stores so entries
// written during an outage are never lost.
type FailoverCacheRepository struct {
	primary      domain.OfflineCache
	fallback     domain.OfflineCache
	logger       *zerolog.Logger
	isDown       atomic.Bool
	lastCheck    atomic.Int64
	recoverAfter time.Duration
	now          func() time.Time

	mu         sync.Mutex
	tombstones map[string]struct{}
}

func NewFailoverCacheRepository(primary, fallback domain.OfflineCache, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: defaultRecoverAfter,
		now:          time.Now,
		tombstones:   make(map[string]struct{}),
	}
}

func (r *FailoverCacheRepository) markDown(err error, op string) {
	r.logger.Error().Err(err).Str("op", op).Msg("Primary cache failed, falling back")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

// primaryUsable reports whether the primary should be tried, allowing a
// recovery probe once recoverAfter has elapsed since the last failure.
func (r *FailoverCacheRepository) primaryUsable() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > r.recoverAfter
}

func (r *FailoverCacheRepository) primaryOK() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary cache recovered")
	}
}

func (r *FailoverCacheRepository) buried(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tombstones[key]
	return ok
}

func (r *FailoverCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.primaryUsable() {
		value, ok, err := r.primary.Get(ctx, key)
		if err == nil {
			r.primaryOK()
			if ok && !r.buried(key) {
				return value, true, nil
			}
		} else {
			r.markDown(err, "get")
		}
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverCacheRepository) Set(ctx context.Context, key string, value []byte) error {
	if r.buried(key) {
		if err := r.fallback.Remove(ctx, tombstoneKey(key)); err != nil {
			return err
		}
		r.mu.Lock()
		delete(r.tombstones, key)
		r.mu.Unlock()
	}

	if r.primaryUsable() {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			r.primaryOK()
			return nil
		}
		r.markDown(err, "set")
	}

	return r.fallback.Set(ctx, key, value)
}

// Remove deletes the key from both stores, even while the primary is marked
// down. When the primary cannot be reached a tombstone is left in the
// fallback and replayed on recovery, so a recovered primary cannot resurrect
// committed entries.
func (r *FailoverCacheRepository) Remove(ctx context.Context, key string) error {
	if err := r.primary.Remove(ctx, key); err != nil {
		if !r.isDown.Load() {
			r.markDown(err, "remove")
		}
		if err := r.fallback.Set(ctx, tombstoneKey(key), []byte(key)); err != nil {
			return err
		}
		r.mu.Lock()
		r.tombstones[key] = struct{}{}
		r.mu.Unlock()
	} else if r.primaryUsable() {
		r.primaryOK()
	}

	return r.fallback.Remove(ctx, key)
}

// replayTombstones loads tombstones from the fallback and applies them to the
// primary. Tombstones the primary still refuses stay in place.
func (r *FailoverCacheRepository) replayTombstones(ctx context.Context) error {
	stored, err := r.fallback.List(ctx, tombstonePrefix)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, e := range stored {
		r.tombstones[strings.TrimPrefix(e.Key, tombstonePrefix)] = struct{}{}
	}
	pending := make([]string, 0, len(r.tombstones))
	for key := range r.tombstones {
		pending = append(pending, key)
	}
	r.mu.Unlock()

	for _, key := range pending {
		if err := r.primary.Remove(ctx, key); err != nil {
			r.markDown(err, "replay tombstone")
			return nil
		}
		if err := r.fallback.Remove(ctx, tombstoneKey(key)); err != nil {
			return err
		}
		r.mu.Lock()
		delete(r.tombstones, key)
		r.mu.Unlock()
		r.logger.Info().Str("key", key).Msg("Applied missed removal to primary cache")
	}
	return nil
}

// List merges both stores: primary entries first, then fallback-only keys.
func (r *FailoverCacheRepository) List(ctx context.Context, prefix string) ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	seen := make(map[string]struct{})

	if r.primaryUsable() {
		if err := r.replayTombstones(ctx); err != nil {
			return nil, err
		}
	}

	if r.primaryUsable() {
		primaryEntries, err := r.primary.List(ctx, prefix)
		if err != nil {
			r.markDown(err, "list")
		} else {
			r.primaryOK()
			for _, e := range primaryEntries {
				if r.buried(e.Key) {
					continue
				}
				seen[e.Key] = struct{}{}
				entries = append(entries, e)
			}
		}
	}

	fallbackEntries, err := r.fallback.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, e := range fallbackEntries {
		if strings.HasPrefix(e.Key, tombstonePrefix) {
			continue
		}
		if _, dup := seen[e.Key]; dup {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Degraded reports whether writes currently go to the fallback.
func (r *FailoverCacheRepository) Degraded() bool {
	return r.isDown.Load()
}
