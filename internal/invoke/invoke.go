package invoke

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls retry and timeout behavior for one call site. The policy is
// identical for every profile a caller selects; profile choice changes the
// prompt and model target, never the orchestration contract.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseBackoff time.Duration // backoff after the first failure, doubled per attempt
	MaxBackoff  time.Duration
	CallTimeout time.Duration // per-attempt deadline; expiry is a transient failure
}

// DefaultLLMPolicy matches the provider-facing defaults: serialized calls,
// four attempts, 800ms initial backoff.
func DefaultLLMPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseBackoff: 800 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		CallTimeout: 90 * time.Second,
	}
}

// DefaultFetchPolicy is used for source-control requests.
func DefaultFetchPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

// Do runs fn under the limiter with the given policy. Transient failures are
// retried with exponential backoff and jitter up to the attempt ceiling;
// permanent failures and context cancellation return immediately. The slot is
// held across retries so overlapping retry storms cannot exceed the ceiling.
func Do(ctx context.Context, l *Limiter, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		// An expired attempt deadline is transient; a canceled parent is not.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = Transient(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !IsTransient(err) || attempt == p.MaxAttempts {
			return lastErr
		}

		if err := sleep(ctx, backoff(p, attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func backoff(p Policy, attempt int) time.Duration {
	d := p.BaseBackoff << uint(attempt-1)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if d <= 0 {
		return 0
	}
	// Full jitter keeps concurrent reviews from retrying in lockstep.
	return time.Duration(rand.Int63n(int64(d))) + d/2
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
