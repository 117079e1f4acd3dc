package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"bookingsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookingOp(ref string) models.Operation {
	return models.Operation{
		Kind:       models.KindBooking,
		NaturalKey: ref,
		Payload:    json.RawMessage(fmt.Sprintf(`{"reference":%q}`, ref)),
	}
}

func TestQueue_EnqueueReturnsLength(t *testing.T) {
	q := New()
	assert.Equal(t, 1, q.Enqueue(bookingOp("BK-1")))
	assert.Equal(t, 2, q.Enqueue(bookingOp("BK-2")))
	// duplicates are not rejected at this layer
	assert.Equal(t, 3, q.Enqueue(bookingOp("BK-1")))
	assert.Equal(t, 3, q.Len())
}

func TestQueue_DrainSnapshotDoesNotMutate(t *testing.T) {
	q := New()
	assert.Nil(t, q.DrainSnapshot())

	q.Enqueue(bookingOp("BK-1"))
	q.Enqueue(bookingOp("BK-2"))

	snap := q.DrainSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 2, q.Len())

	snap[0].NaturalKey = "mutated"
	again := q.DrainSnapshot()
	assert.Equal(t, "BK-1", again[0].NaturalKey)
}

func TestQueue_RemoveCommitted(t *testing.T) {
	q := New()
	q.Enqueue(bookingOp("BK-1"))
	q.Enqueue(bookingOp("BK-2"))
	q.Enqueue(bookingOp("BK-1"))
	q.Enqueue(models.Operation{Kind: "invoice", NaturalKey: "BK-2"})

	removed := q.RemoveCommitted(q.Len(), []models.Operation{bookingOp("BK-1"), bookingOp("BK-2")})
	assert.Equal(t, 3, removed)

	rest := q.DrainSnapshot()
	require.Len(t, rest, 1)
	assert.Equal(t, models.Kind("invoice"), rest[0].Kind, "identity includes kind")

	assert.Equal(t, 0, q.RemoveCommitted(1, nil))
}

func TestQueue_EnqueueDuringCycleIsKept(t *testing.T) {
	q := New()
	q.Enqueue(bookingOp("BK-1"))

	snap := q.DrainSnapshot()
	q.Enqueue(bookingOp("BK-2")) // arrives while the cycle is in flight
	q.RemoveCommitted(len(snap), snap)

	rest := q.DrainSnapshot()
	require.Len(t, rest, 1)
	assert.Equal(t, "BK-2", rest[0].NaturalKey)
}

func TestQueue_ResubmittedKeyAfterSnapshotIsKept(t *testing.T) {
	q := New()
	q.Enqueue(bookingOp("BK-1"))
	q.Enqueue(bookingOp("BK-2"))

	snap := q.DrainSnapshot()
	q.Enqueue(bookingOp("BK-1")) // same key submitted again mid-cycle

	removed := q.RemoveCommitted(len(snap), snap)
	assert.Equal(t, 2, removed)

	rest := q.DrainSnapshot()
	require.Len(t, rest, 1)
	assert.Equal(t, "BK-1", rest[0].NaturalKey)

	assert.Equal(t, 1, q.RemoveCommitted(10, rest), "snapshot length is clamped to the queue")
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(bookingOp(fmt.Sprintf("BK-%d", i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}
