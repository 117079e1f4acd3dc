package syncer

import (
	"context"
	"fmt"

	"bookingsync/internal/config"
	"bookingsync/internal/domain"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

const (
	outcomeWritten          = "written"
	outcomeAlreadySatisfied = "already_satisfied"
)

// BatchStat describes one outer batch of a commit run.
type BatchStat struct {
	Kind       models.Kind
	Size       int
	SubBatches []int
}

// Result reports what a commit run achieved.
type Result struct {
	// Committed lists every op that may leave the queue, in processing order.
	Committed        []models.Operation
	Written          int
	AlreadySatisfied int
	FailedSubBatches int
	// Failed counts ops left for the next cycle.
	Failed  int
	Batches []BatchStat
	// LastErr is the most recent sub-batch failure, nil when all succeeded.
	LastErr error
}

// Committer drains a snapshot into the remote store in bounded, atomic
// sub-batches.
type Committer struct {
	remote   domain.RemoteStore
	dedup    *Deduplicator
	cleaner  domain.Cleaner
	outer    int
	subBatch int
	logger   *zerolog.Logger
}

func NewCommitter(remote domain.RemoteStore, cleaner domain.Cleaner, cfg config.SyncConfig, logger *zerolog.Logger) *Committer {
	cfg = cfg.WithDefaults()
	return &Committer{
		remote:   remote,
		dedup:    NewDeduplicator(remote, cfg.DedupChunkSize, logger),
		cleaner:  cleaner,
		outer:    cfg.OuterBatchSize,
		subBatch: cfg.SubBatchSize,
		logger:   logging.Component(logger, "committer"),
	}
}

// Commit processes ops grouped by kind in first-appearance order. Sub-batches
// run sequentially; a failed sub-batch leaves its ops for the next cycle
// without affecting the others.
func (c *Committer) Commit(ctx context.Context, ops []models.Operation) Result {
	var res Result

	kinds, groups := groupByKind(ops)
	for _, kind := range kinds {
		// keys committed earlier in this run, so repeats are not rewritten
		done := make(map[string]struct{})
		group := groups[kind]

		for start := 0; start < len(group); start += c.outer {
			batch := group[start:min(start+c.outer, len(group))]
			stat := BatchStat{Kind: kind, Size: len(batch)}

			existing := c.dedup.Existing(ctx, kind, models.NaturalKeys(batch))

			for subStart := 0; subStart < len(batch); subStart += c.subBatch {
				sub := batch[subStart:min(subStart+c.subBatch, len(batch))]
				stat.SubBatches = append(stat.SubBatches, len(sub))
				c.commitSubBatch(ctx, kind, sub, existing, done, &res)
			}

			res.Batches = append(res.Batches, stat)
		}
	}

	return res
}

func (c *Committer) commitSubBatch(
	ctx context.Context,
	kind models.Kind,
	sub []models.Operation,
	existing DedupResult,
	done map[string]struct{},
	res *Result,
) {
	var (
		satisfied []models.Operation
		writes    []models.Operation
		followers []models.Operation
	)
	inWrite := make(map[string]struct{}, len(sub))

	for _, op := range sub {
		key := op.NaturalKey
		_, committed := done[key]
		switch {
		case existing.Contains(key) || committed:
			satisfied = append(satisfied, op)
		case hasKey(inWrite, key):
			followers = append(followers, op)
		default:
			inWrite[key] = struct{}{}
			writes = append(writes, op)
		}
	}

	for _, op := range satisfied {
		c.succeed(ctx, op, done, res)
	}
	res.AlreadySatisfied += len(satisfied)
	metrics.AddCommitted(string(kind), outcomeAlreadySatisfied, len(satisfied))

	if len(writes) == 0 {
		return
	}

	err := ctx.Err()
	if err == nil {
		err = c.remote.CommitBatch(ctx, kind, writes)
	}
	if err != nil {
		res.FailedSubBatches++
		res.Failed += len(writes) + len(followers)
		res.LastErr = fmt.Errorf("commit %s sub-batch of %d: %w", kind, len(writes), err)
		metrics.IncSubBatchFailure(string(kind))
		c.logger.Error().
			Err(err).
			Str("kind", string(kind)).
			Int("size", len(writes)).
			Strs("keys", models.NaturalKeys(writes)).
			Msg("Sub-batch commit failed, operations stay queued")
		return
	}

	for _, op := range writes {
		c.succeed(ctx, op, done, res)
	}
	res.Written += len(writes)
	metrics.AddCommitted(string(kind), outcomeWritten, len(writes))

	for _, op := range followers {
		c.succeed(ctx, op, done, res)
	}
	res.AlreadySatisfied += len(followers)
	metrics.AddCommitted(string(kind), outcomeAlreadySatisfied, len(followers))

	c.logger.Debug().
		Str("kind", string(kind)).
		Int("written", len(writes)).
		Int("satisfied", len(satisfied)+len(followers)).
		Msg("Sub-batch committed")
}

// succeed records op as committed and forgets it from the durable cache at once.
func (c *Committer) succeed(ctx context.Context, op models.Operation, done map[string]struct{}, res *Result) {
	done[op.NaturalKey] = struct{}{}
	res.Committed = append(res.Committed, op)
	if c.cleaner == nil {
		return
	}
	if err := c.cleaner.Forget(ctx, op.Kind, op.NaturalKey); err != nil {
		c.logger.Warn().Err(err).Str("key", op.Key().CacheKey()).Msg("Failed to forget committed operation")
	}
}

func groupByKind(ops []models.Operation) ([]models.Kind, map[models.Kind][]models.Operation) {
	var kinds []models.Kind
	groups := make(map[models.Kind][]models.Operation)
	for _, op := range ops {
		if _, ok := groups[op.Kind]; !ok {
			kinds = append(kinds, op.Kind)
		}
		groups[op.Kind] = append(groups[op.Kind], op)
	}
	return kinds, groups
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
