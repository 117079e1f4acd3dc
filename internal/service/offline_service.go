package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"bookingsync/internal/clock"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
	"bookingsync/internal/queue"
	"bookingsync/internal/worker"

	"github.com/rs/zerolog"
)

// Monitor is the connectivity view the service needs.
type Monitor interface {
	IsOnline() bool
	OnReconnected(fn func())
	Start()
	Stop()
}

// Status is a point-in-time view of the engine.
type Status struct {
	QueueLength int               `json:"queue_length"`
	Online      bool              `json:"online"`
	Running     bool              `json:"running"`
	Attempt     int               `json:"attempt"`
	RetryArmed  bool              `json:"retry_armed"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	LastCycle   *models.SyncCycle `json:"last_cycle,omitempty"`
	Restored    int               `json:"restored"`
}

// OfflineService is the entry point producers and triggers talk to.
type OfflineService struct {
	queue    *queue.Queue
	cleanup  *CleanupService
	worker   *worker.SyncWorker
	monitor  Monitor
	clock    clock.Clock
	logger   *zerolog.Logger
	restored int
}

func NewOfflineService(
	q *queue.Queue,
	cleanup *CleanupService,
	w *worker.SyncWorker,
	monitor Monitor,
	clk clock.Clock,
	logger *zerolog.Logger,
) *OfflineService {
	if clk == nil {
		clk = clock.New()
	}
	return &OfflineService{
		queue:   q,
		cleanup: cleanup,
		worker:  w,
		monitor: monitor,
		clock:   clk,
		logger:  logging.Component(logger, "offline_service"),
	}
}

// AddToOfflineQueue appends op and mirrors it into the durable cache. A cache
// failure is logged; the op stays queued. It returns the new queue length.
// Operations without a kind or key, or with a payload that is not JSON, are
// rejected before they reach the queue.
func (s *OfflineService) AddToOfflineQueue(ctx context.Context, op models.Operation) (int, error) {
	if err := op.Validate(); err != nil {
		return s.queue.Len(), fmt.Errorf("add to offline queue: %w", err)
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = s.clock.Now()
	}
	// the caller may reuse its buffer; a queued operation must not change
	op.Payload = bytes.Clone(op.Payload)

	if err := s.cleanup.Remember(ctx, op); err != nil {
		s.logger.Error().Err(err).Str("key", op.Key().CacheKey()).Msg("Failed to persist operation, kept in memory only")
	}

	n := s.queue.Enqueue(op)
	metrics.IncEnqueued(string(op.Kind))
	metrics.SetQueueLength(n)

	s.logger.Debug().Str("key", op.Key().CacheKey()).Int("queue_length", n).Msg("Operation queued")
	return n, nil
}

// SyncOfflineData starts a cycle in the background. It returns false when
// offline, when the queue is empty, or when a cycle or retry is pending.
func (s *OfflineService) SyncOfflineData(ctx context.Context) bool {
	if !s.monitor.IsOnline() {
		s.logger.Debug().Msg("Sync skipped: offline")
		return false
	}
	if s.queue.Len() == 0 {
		return false
	}
	return s.worker.TryStart(ctx)
}

// Restore reloads cached operations into the queue.
func (s *OfflineService) Restore(ctx context.Context) (int, error) {
	ops, err := s.cleanup.Restore(ctx)
	if err != nil {
		return 0, err
	}
	for _, op := range ops {
		s.queue.Enqueue(op)
	}
	s.restored = len(ops)
	metrics.SetQueueLength(s.queue.Len())
	if len(ops) > 0 {
		s.logger.Info().Int("count", len(ops)).Msg("Restored pending operations from cache")
	}
	return len(ops), nil
}

// Start restores the queue and wires the reconnect trigger. ctx bounds every
// cycle the service starts.
func (s *OfflineService) Start(ctx context.Context) error {
	if _, err := s.Restore(ctx); err != nil {
		return err
	}
	s.monitor.OnReconnected(func() {
		if !s.SyncOfflineData(ctx) {
			s.logger.Debug().Msg("Reconnect trigger coalesced or nothing to sync")
		}
	})
	s.monitor.Start()
	return nil
}

func (s *OfflineService) Stop() {
	s.monitor.Stop()
	s.worker.Stop()
}

func (s *OfflineService) Status() Status {
	state := s.worker.State()
	st := Status{
		QueueLength: s.queue.Len(),
		Online:      s.monitor.IsOnline(),
		Running:     s.worker.Running(),
		Attempt:     state.Attempt,
		RetryArmed:  state.Armed(),
		LastCycle:   s.worker.LastCycle(),
		Restored:    s.restored,
	}
	if state.Armed() {
		at := state.ScheduledAt
		st.NextRetryAt = &at
	}
	return st
}

// Pending returns a copy of the queued operations.
func (s *OfflineService) Pending() []models.Operation {
	return s.queue.DrainSnapshot()
}
