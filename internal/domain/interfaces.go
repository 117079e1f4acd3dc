package domain

import (
	"context"

	"bookingsync/internal/models"
)

// CacheEntry is one durable cache record.
type CacheEntry struct {
	Key   string
	Value []byte
}

// OfflineCache is the durable key-value store mirroring the queue so pending
// operations survive restarts. Remove of an absent key is a no-op.
type OfflineCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]CacheEntry, error)
}

// RemoteStore is the hosted document store the queue drains into.
type RemoteStore interface {
	// ExistingKeys returns the subset of keys already stored remotely.
	// Callers keep len(keys) within the backend's set-membership limit.
	ExistingKeys(ctx context.Context, kind models.Kind, keys []string) ([]string, error)
	// CommitBatch writes ops as one atomic unit: all or nothing.
	CommitBatch(ctx context.Context, kind models.Kind, ops []models.Operation) error
	Ping(ctx context.Context) error
}

// Cleaner removes committed operations from the durable cache.
type Cleaner interface {
	Forget(ctx context.Context, kind models.Kind, naturalKey string) error
}

// CycleRecorder keeps an audit trail of sync cycles.
type CycleRecorder interface {
	RecordSyncCycle(ctx context.Context, cycle *models.SyncCycle) error
}

// ConnectivityState reports the last known reachability.
type ConnectivityState interface {
	IsOnline() bool
}
