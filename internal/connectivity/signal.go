package connectivity

import (
	"sync"

	"bookingsync/internal/events"
)

// ManualSignal is a Signal driven by explicit Set calls. The prober and
// tests use it as the reachability source.
type ManualSignal struct {
	mu    sync.Mutex
	state *bool
	bus   *events.Bus[bool]
}

func NewManualSignal() *ManualSignal {
	return &ManualSignal{bus: events.NewBus[bool]()}
}

func (s *ManualSignal) OnChange(fn func(online bool)) func() {
	return s.bus.Subscribe(fn)
}

// Set publishes online when it differs from the last published value.
func (s *ManualSignal) Set(online bool) {
	s.mu.Lock()
	if s.state != nil && *s.state == online {
		s.mu.Unlock()
		return
	}
	s.state = &online
	s.mu.Unlock()

	s.bus.Publish(online)
}

// Listeners returns the number of attached handlers.
func (s *ManualSignal) Listeners() int {
	return s.bus.Len()
}
