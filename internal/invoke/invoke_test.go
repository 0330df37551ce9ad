package invoke

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/models"
)

func TestLimiter_NeverExceedsCeiling(t *testing.T) {
	const ceiling = 5
	const workers = 80

	l := NewLimiter(ceiling, 0)
	var inFlight, peak int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			l.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(ceiling))
}

func TestLimiter_MinSpacing(t *testing.T) {
	const spacing = 20 * time.Millisecond
	l := NewLimiter(1, spacing)

	var starts []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(context.Background()))
		starts = append(starts, time.Now())
		l.Release()
	}

	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, spacing-2*time.Millisecond, "calls %d and %d too close", i-1, i)
	}
}

func TestLimiter_AcquireCanceled(t *testing.T) {
	l := NewLimiter(1, 0)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_RetriesTransientUpToCeiling(t *testing.T) {
	l := NewLimiter(1, 0)
	p := Policy{MaxAttempts: 4, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	var attempts int
	err := Do(context.Background(), l, p, func(ctx context.Context) error {
		attempts++
		return Transient(errors.New("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.True(t, IsTransient(err))
}

func TestDo_NoRetryOnPermanentFailure(t *testing.T) {
	l := NewLimiter(1, 0)
	p := Policy{MaxAttempts: 4, BaseBackoff: time.Millisecond}

	var attempts int
	err := Do(context.Background(), l, p, func(ctx context.Context) error {
		attempts++
		return errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	l := NewLimiter(1, 0)
	p := Policy{MaxAttempts: 4, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	var attempts int
	err := Do(context.Background(), l, p, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("rate limited"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AttemptTimeoutIsTransient(t *testing.T) {
	l := NewLimiter(1, 0)
	p := Policy{MaxAttempts: 2, BaseBackoff: time.Millisecond, CallTimeout: 5 * time.Millisecond}

	var attempts int
	err := Do(context.Background(), l, p, func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_ParentCancellationStopsRetries(t *testing.T) {
	l := NewLimiter(1, 0)
	p := Policy{MaxAttempts: 10, BaseBackoff: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, l, p, func(ctx context.Context) error {
		attempts++
		return Transient(errors.New("boom"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2)
}

func TestStatusError_Taxonomy(t *testing.T) {
	assert.ErrorIs(t, StatusError(http.StatusNotFound, "pr"), models.ErrNotFound)
	assert.ErrorIs(t, StatusError(http.StatusUnauthorized, "token"), models.ErrUnauthorized)
	assert.ErrorIs(t, StatusError(http.StatusForbidden, "token"), models.ErrUnauthorized)
	assert.True(t, IsTransient(StatusError(http.StatusTooManyRequests, "slow down")))
	assert.True(t, IsTransient(StatusError(http.StatusBadGateway, "upstream")))
	assert.False(t, IsTransient(StatusError(http.StatusBadRequest, "malformed")))
}

func TestClassifyMessage(t *testing.T) {
	assert.True(t, IsTransient(ClassifyMessage(errors.New("429 too many requests"))))
	assert.True(t, IsTransient(ClassifyMessage(errors.New("provider overloaded"))))
	assert.False(t, IsTransient(ClassifyMessage(errors.New("invalid api key"))))
	assert.NoError(t, ClassifyMessage(nil))
}
