// Package invoke wraps every outbound call a review makes — source-control
// fetches and semantic-analysis calls — with concurrency ceilings, minimum
// inter-call spacing, per-call timeouts, and bounded retry with backoff.
package invoke

import (
	"context"
	"sync"
	"time"
)

// Limiter bounds concurrent calls and optionally enforces a minimum gap
// between consecutive call starts. One Limiter instance is shared across all
// reviews in the process; it is constructed once at startup and passed by
// handle into every pipeline, never reached through a package global.
type Limiter struct {
	slots chan struct{}

	mu       sync.Mutex
	spacing  time.Duration
	lastCall time.Time
}

// NewLimiter creates a limiter with the given concurrency ceiling and minimum
// spacing between call starts. A spacing of zero disables pacing.
func NewLimiter(concurrency int, spacing time.Duration) *Limiter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Limiter{
		slots:   make(chan struct{}, concurrency),
		spacing: spacing,
	}
}

// Acquire blocks until a slot is free and the spacing window has elapsed.
// It returns an error only if ctx is canceled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if l.spacing <= 0 {
		return nil
	}

	// Pacing is decided under the lock so two goroutines cannot claim the
	// same window, but the sleep itself happens outside it.
	l.mu.Lock()
	now := time.Now()
	next := l.lastCall.Add(l.spacing)
	if next.Before(now) {
		next = now
	}
	l.lastCall = next
	l.mu.Unlock()

	if wait := time.Until(next); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			<-l.slots
			return ctx.Err()
		}
	}
	return nil
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// InFlight reports the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
