// Package connectivity tracks whether the remote store is reachable and
// raises a debounced reconnect signal on every offline to online edge.
package connectivity

import (
	"sync"
	"time"

	"bookingsync/internal/clock"
	"bookingsync/internal/events"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// Signal is a source of reachability changes.
type Signal interface {
	// OnChange registers fn and returns a func that detaches it.
	OnChange(fn func(online bool)) func()
}

// Monitor observes a Signal. The initial state is offline until the signal
// reports otherwise.
type Monitor struct {
	signal Signal
	clock  clock.Clock
	settle time.Duration
	logger *zerolog.Logger
	bus    *events.Bus[bool]

	mu          sync.Mutex
	online      bool
	started     bool
	detach      func()
	settleTimer clock.Timer
	generation  uint64
	onReconnect func()
}

func NewMonitor(signal Signal, clk clock.Clock, settle time.Duration, logger *zerolog.Logger) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if settle < 0 {
		settle = time.Duration(models.DefaultReconnectSettleMS) * time.Millisecond
	}
	return &Monitor{
		signal: signal,
		clock:  clk,
		settle: settle,
		logger: logging.Component(logger, "connectivity"),
		bus:    events.NewBus[bool](),
	}
}

// Subscribe registers handler for every state change.
func (m *Monitor) Subscribe(handler func(online bool)) func() {
	return m.bus.Subscribe(handler)
}

// OnReconnected sets the callback run once per settled offline to online edge.
func (m *Monitor) OnReconnected(fn func()) {
	m.mu.Lock()
	m.onReconnect = fn
	m.mu.Unlock()
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start attaches to the signal. Calling it again is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	detach := m.signal.OnChange(m.handle)

	m.mu.Lock()
	m.detach = detach
	m.mu.Unlock()
	m.logger.Debug().Msg("Connectivity monitor started")
}

// Stop detaches from the signal and cancels a pending settle timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	detach := m.detach
	m.detach = nil
	m.started = false
	m.cancelSettleLocked()
	m.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (m *Monitor) handle(online bool) {
	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.cancelSettleLocked()
	if online {
		m.generation++
		gen := m.generation
		m.settleTimer = m.clock.AfterFunc(m.settle, func() { m.settled(gen) })
	}
	m.mu.Unlock()

	metrics.SetOnline(online)
	if online {
		m.logger.Info().Dur("settle", m.settle).Msg("Remote store reachable")
	} else {
		m.logger.Warn().Msg("Remote store unreachable, buffering operations")
	}
	m.bus.Publish(online)
}

func (m *Monitor) settled(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.online || m.settleTimer == nil {
		m.mu.Unlock()
		return
	}
	m.settleTimer = nil
	fn := m.onReconnect
	m.mu.Unlock()

	m.logger.Info().Msg("Connection settled, triggering sync")
	if fn != nil {
		fn()
	}
}

func (m *Monitor) cancelSettleLocked() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
}
