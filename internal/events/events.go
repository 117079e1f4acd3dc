package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventCycleFinished    = "sync_cycle_finished"
	EventRetriesExhausted = "sync_retries_exhausted"
	EventDrained          = "sync_queue_drained"
)

// SyncEvent describes the outcome of a sync cycle for event consumers.
type SyncEvent struct {
	Type      string    `json:"type"`
	CycleID   string    `json:"cycle_id"`
	Attempt   int       `json:"attempt"`
	Snapshot  int       `json:"snapshot"`
	Committed int       `json:"committed"`
	Remaining int       `json:"remaining"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JSON serializes the event for log sinks.
func (e SyncEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Handler reacts to a published value.
type Handler[T any] func(T)

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus provides typed in-process pub/sub.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

// NewBus constructs an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a handler and returns a func removing it.
func (b *Bus[T]) Subscribe(handler Handler[T]) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[T]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish notifies subscribers in registration order.
func (b *Bus[T]) Publish(value T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription[T](nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		s.handler(value)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
