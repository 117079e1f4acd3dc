package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookingsync/internal/clock"
	"bookingsync/internal/domain"
	"bookingsync/internal/events"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
	"bookingsync/internal/queue"
	"bookingsync/internal/syncer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Committer writes a snapshot to the remote store.
type Committer interface {
	Commit(ctx context.Context, ops []models.Operation) syncer.Result
}

// RetryState tracks the backoff sequence. There is one per worker.
type RetryState struct {
	Attempt     int
	ScheduledAt time.Time
	timer       clock.Timer
}

// Armed reports whether a retry timer is pending.
func (s RetryState) Armed() bool {
	return s.timer != nil
}

// SyncWorker runs sync cycles one at a time and reschedules leftovers with
// exponential backoff until the queue drains or attempts run out.
type SyncWorker struct {
	queue     *queue.Queue
	committer Committer
	clock     clock.Clock
	policy    RetryPolicy
	bus       *events.Bus[events.SyncEvent]
	recorder  domain.CycleRecorder
	logger    *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	state   RetryState
	last    *models.SyncCycle
}

// NewSyncWorker builds a worker. bus and recorder may be nil.
func NewSyncWorker(
	q *queue.Queue,
	committer Committer,
	clk clock.Clock,
	policy RetryPolicy,
	bus *events.Bus[events.SyncEvent],
	recorder domain.CycleRecorder,
	logger *zerolog.Logger,
) *SyncWorker {
	if clk == nil {
		clk = clock.New()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &SyncWorker{
		queue:     q,
		committer: committer,
		clock:     clk,
		policy:    policy,
		bus:       bus,
		recorder:  recorder,
		logger:    logging.Component(logger, "sync_worker"),
	}
}

// TryStart launches a fresh backoff sequence in the background. It returns
// false when a cycle is in flight, a retry is already armed, or the worker
// is stopped; the pending work will pick up anything enqueued meanwhile.
func (w *SyncWorker) TryStart(ctx context.Context) bool {
	w.mu.Lock()
	if w.stopped || w.running || w.state.timer != nil {
		w.mu.Unlock()
		return false
	}
	w.running = true
	w.mu.Unlock()

	go w.runCycle(ctx, 0)
	return true
}

// ScheduleSync runs one cycle for attempt synchronously, then either resets,
// arms the next retry, or gives up. It returns false if another cycle is in
// flight or the worker is stopped.
func (w *SyncWorker) ScheduleSync(ctx context.Context, attempt int) bool {
	w.mu.Lock()
	if w.stopped || w.running {
		w.mu.Unlock()
		return false
	}
	w.running = true
	w.mu.Unlock()

	w.runCycle(ctx, attempt)
	return true
}

func (w *SyncWorker) runCycle(ctx context.Context, attempt int) {
	cycle := w.execute(ctx, attempt)

	exhausted := false
	var delay time.Duration

	w.mu.Lock()
	w.running = false
	w.last = cycle
	if w.state.timer != nil {
		w.state.timer.Stop()
		w.state.timer = nil
	}
	switch {
	case cycle.Remaining == 0:
		w.state = RetryState{}
	case w.stopped:
	case w.policy.Exhausted(attempt):
		exhausted = true
		w.state = RetryState{Attempt: attempt}
	default:
		next := attempt + 1
		delay = w.policy.NextDelay(next)
		w.state.Attempt = next
		w.state.ScheduledAt = w.clock.Now().Add(delay)
		w.state.timer = w.clock.AfterFunc(delay, func() { w.fire(ctx, next) })
	}
	w.mu.Unlock()

	metrics.IncSyncCycle(cycle.Result)
	metrics.SetQueueLength(cycle.Remaining)
	w.record(ctx, cycle)

	log := w.logger.With().Str("cycle_id", cycle.CycleID).Int("attempt", attempt).Logger()
	event := events.SyncEvent{
		Type:      events.EventCycleFinished,
		CycleID:   cycle.CycleID,
		Attempt:   attempt,
		Snapshot:  cycle.Snapshot,
		Committed: cycle.Committed(),
		Remaining: cycle.Remaining,
		CreatedAt: w.clock.Now(),
	}
	if cycle.LastError != nil {
		event.Error = *cycle.LastError
	}
	w.publish(event)

	switch {
	case cycle.Remaining == 0:
		log.Info().Int("committed", cycle.Committed()).Msg("Offline queue drained")
		event.Type = events.EventDrained
		w.publish(event)
	case exhausted:
		log.Error().Int("remaining", cycle.Remaining).Msg("Sync max retries exhausted, operations kept for the next trigger")
		metrics.IncRetriesExhausted()
		event.Type = events.EventRetriesExhausted
		w.publish(event)
	case delay > 0:
		log.Warn().
			Int("remaining", cycle.Remaining).
			Dur("retry_in", delay).
			Msg("Sync cycle left operations, retry scheduled")
	}
}

func (w *SyncWorker) fire(ctx context.Context, attempt int) {
	w.mu.Lock()
	w.state.timer = nil
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	w.ScheduleSync(ctx, attempt)
}

// execute performs snapshot, commit and removal. A panic is recovered and
// reported as an errored cycle with everything still queued.
func (w *SyncWorker) execute(ctx context.Context, attempt int) (cycle *models.SyncCycle) {
	cycle = &models.SyncCycle{
		CycleID:   uuid.NewString(),
		Attempt:   attempt,
		StartedAt: w.clock.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("sync cycle panic: %v", r)
			w.logger.Error().Str("cycle_id", cycle.CycleID).Msg(msg)
			cycle.LastError = &msg
			cycle.Result = models.CycleResultError
			cycle.Remaining = w.queue.Len()
		}
		finished := w.clock.Now()
		cycle.FinishedAt = &finished
	}()

	snapshot := w.queue.DrainSnapshot()
	cycle.Snapshot = len(snapshot)
	w.logger.Debug().Str("cycle_id", cycle.CycleID).Int("attempt", attempt).Int("snapshot", len(snapshot)).Msg("Sync cycle started")

	if len(snapshot) > 0 {
		res := w.committer.Commit(ctx, snapshot)
		w.queue.RemoveCommitted(len(snapshot), res.Committed)

		cycle.Written = res.Written
		cycle.AlreadySatisfied = res.AlreadySatisfied
		cycle.FailedSubBatches = res.FailedSubBatches
		if res.LastErr != nil {
			msg := res.LastErr.Error()
			cycle.LastError = &msg
		}
	}

	cycle.Remaining = w.queue.Len()
	if cycle.Remaining == 0 {
		cycle.Result = models.CycleResultDrained
	} else {
		cycle.Result = models.CycleResultRemaining
	}
	return cycle
}

// publish hands ev to the subscribers. A panicking subscriber is logged and
// does not take the cycle goroutine down with it.
func (w *SyncWorker) publish(ev events.SyncEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("cycle_id", ev.CycleID).
				Str("event", ev.Type).
				Msg(fmt.Sprintf("sync event subscriber panic: %v", r))
		}
	}()
	w.bus.Publish(ev)
}

func (w *SyncWorker) record(ctx context.Context, cycle *models.SyncCycle) {
	if w.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Str("cycle_id", cycle.CycleID).Msg(fmt.Sprintf("sync cycle recorder panic: %v", r))
		}
	}()
	// аудит не должен зависеть от отмены контекста цикла
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.recorder.RecordSyncCycle(recCtx, cycle); err != nil {
		w.logger.Warn().Err(err).Str("cycle_id", cycle.CycleID).Msg("Failed to record sync cycle")
	}
}

// Stop cancels any armed retry and refuses further cycles.
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.state.timer != nil {
		w.state.timer.Stop()
		w.state.timer = nil
	}
}

// Cancel drops an armed retry but keeps the worker usable.
func (w *SyncWorker) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.timer == nil {
		return false
	}
	stopped := w.state.timer.Stop()
	w.state.timer = nil
	return stopped
}

// State returns a copy of the retry state.
func (w *SyncWorker) State() RetryState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Running reports whether a cycle is in flight.
func (w *SyncWorker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastCycle returns the most recently finished cycle, nil before the first.
func (w *SyncWorker) LastCycle() *models.SyncCycle {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return nil
	}
	c := *w.last
	return &c
}
