package worker

import (
	"math"
	"time"

	"bookingsync/internal/config"
)

// RetryPolicy describes the sync backoff. Attempt numbers are 1-based: the
// first retry after a failed cycle is attempt 1.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig builds the sync backoff: base * 2^(n-1), uncapped.
func PolicyFromConfig(cfg config.SyncConfig) RetryPolicy {
	cfg = cfg.WithDefaults()
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetryAttempts,
		InitialDelay:  cfg.BackoffBase(),
		BackoffFactor: 2,
	}
}

// NextDelay returns the wait before retry attempt, clamped to MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Exhausted reports whether a cycle that ran as attempt may not be followed
// by another retry. attempt 0 is the triggering cycle.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// Schedule lists every delay the policy will wait, in order.
func (r RetryPolicy) Schedule() []time.Duration {
	if r.MaxRetries <= 0 {
		return nil
	}
	out := make([]time.Duration, 0, r.MaxRetries)
	for n := 1; n <= r.MaxRetries; n++ {
		out = append(out, r.NextDelay(n))
	}
	return out
}
