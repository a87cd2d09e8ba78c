// internal/engine/backoff.go
package engine

import (
	"math"
	"time"
)

// BackoffPolicy shapes the delay between session re-establishment attempts.
type BackoffPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultBackoffPolicy returns a BackoffPolicy with sensible defaults:
// 2s initial delay, 2x multiplier, 60s max delay.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
	}
}

// NextDelay returns the delay for the given consecutive-failure count
// (1-indexed). The delay is InitialDelay * Multiplier^(failures-1), capped
// at MaxDelay.
func (p *BackoffPolicy) NextDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(failures-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
