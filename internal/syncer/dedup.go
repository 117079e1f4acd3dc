package syncer

import (
	"context"

	"bookingsync/internal/domain"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// DedupResult is the set of natural keys confirmed to exist remotely.
type DedupResult struct {
	existing map[string]struct{}
	// Unknown counts keys whose chunk query failed. They are not excluded.
	Unknown int
}

func (r DedupResult) Contains(key string) bool {
	_, ok := r.existing[key]
	return ok
}

func (r DedupResult) Len() int {
	return len(r.existing)
}

// Deduplicator asks the remote store which keys already exist, in chunks no
// larger than the backend's set-membership limit.
type Deduplicator struct {
	remote    domain.RemoteStore
	chunkSize int
	logger    *zerolog.Logger
}

func NewDeduplicator(remote domain.RemoteStore, chunkSize int, logger *zerolog.Logger) *Deduplicator {
	if chunkSize <= 0 {
		chunkSize = models.DefaultDedupChunkSize
	}
	return &Deduplicator{
		remote:    remote,
		chunkSize: chunkSize,
		logger:    logging.Component(logger, "dedup"),
	}
}

// Existing never fails: a chunk whose query errors is treated as unknown and
// its keys are written anyway, relying on the backend to reject duplicates.
func (d *Deduplicator) Existing(ctx context.Context, kind models.Kind, keys []string) DedupResult {
	result := DedupResult{existing: make(map[string]struct{})}

	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	for start := 0; start < len(unique); start += d.chunkSize {
		end := min(start+d.chunkSize, len(unique))
		chunk := unique[start:end]

		found, err := d.remote.ExistingKeys(ctx, kind, chunk)
		if err != nil {
			result.Unknown += len(chunk)
			metrics.IncDedupFailure(string(kind))
			d.logger.Warn().
				Err(err).
				Str("kind", string(kind)).
				Int("keys", len(chunk)).
				Msg("Existence query failed, keys treated as unknown; duplicates possible if backend accepts them")
			continue
		}

		asked := make(map[string]struct{}, len(chunk))
		for _, k := range chunk {
			asked[k] = struct{}{}
		}
		for _, k := range found {
			// ignore keys we never asked about
			if _, ok := asked[k]; ok {
				result.existing[k] = struct{}{}
			}
		}
	}

	return result
}
