package connectivity

import (
	"context"
	"time"

	"bookingsync/internal/logging"

	"github.com/rs/zerolog"
)

// Pinger checks reachability of a remote endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober pings the remote store on an interval and feeds a ManualSignal.
type Prober struct {
	pinger   Pinger
	signal   *ManualSignal
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger
}

func NewProber(pinger Pinger, signal *ManualSignal, interval, timeout time.Duration, logger *zerolog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		pinger:   pinger,
		signal:   signal,
		interval: interval,
		timeout:  timeout,
		logger:   logging.Component(logger, "prober"),
	}
}

// Probe performs one ping and publishes the result.
func (p *Prober) Probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pingCtx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Remote ping failed")
	}
	online := err == nil
	p.signal.Set(online)
	return online
}

// Run probes immediately and then every interval until ctx is done. A
// non-positive interval marks the remote reachable once and returns.
func (p *Prober) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.signal.Set(true)
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
