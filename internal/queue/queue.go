// Package queue holds operations waiting for a remote commit.
//
// The queue is append-only from the producers' side. The only other mutation
// is RemoveCommitted, called by the sync worker once a cycle knows which
// operations of its snapshot reached the remote store. DrainSnapshot copies, so operations
// enqueued while a cycle is in flight are picked up by the next cycle.
package queue

import (
	"sync"

	"bookingsync/internal/models"
)

type Queue struct {
	mu  sync.Mutex
	ops []models.Operation
}

func New() *Queue {
	return &Queue{}
}

// Enqueue appends op to the tail and returns the new length. Duplicates are
// accepted; deduplication happens at commit time.
func (q *Queue) Enqueue(op models.Operation) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	return len(q.ops)
}

// DrainSnapshot returns a copy of the current contents without mutating them.
func (q *Queue) DrainSnapshot() []models.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return nil
	}
	snapshot := make([]models.Operation, len(q.ops))
	copy(snapshot, q.ops)
	return snapshot
}

// RemoveCommitted drops operations whose (kind, natural key) matches one in
// committed, looking only at the first snapshotLen entries: the ones handed
// out by the DrainSnapshot the cycle worked on. Entries enqueued after that
// snapshot stay queued even when their key was just committed, so they keep
// their durable cache entry and go through the next cycle. It returns how
// many entries were removed.
func (q *Queue) RemoveCommitted(snapshotLen int, committed []models.Operation) int {
	if len(committed) == 0 || snapshotLen <= 0 {
		return 0
	}
	keys := make(map[models.OperationKey]struct{}, len(committed))
	for _, op := range committed {
		keys[op.Key()] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if snapshotLen > len(q.ops) {
		snapshotLen = len(q.ops)
	}
	kept := q.ops[:0]
	for i, op := range q.ops {
		if _, done := keys[op.Key()]; done && i < snapshotLen {
			continue
		}
		kept = append(kept, op)
	}
	removed := len(q.ops) - len(kept)
	// clear the tail so removed payloads can be collected
	for i := len(kept); i < len(q.ops); i++ {
		q.ops[i] = models.Operation{}
	}
	q.ops = kept
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
