package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock advances its own time by every requested wait and fires at once.
type steppingClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *steppingClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, w := range c.waits {
		sum += w
	}
	return sum
}

// blockingClock holds every wait until release is closed.
type blockingClock struct {
	now     time.Time
	pending atomic.Int64
	release chan struct{}
}

func (c *blockingClock) Now() time.Time { return c.now }

func (c *blockingClock) After(time.Duration) <-chan time.Time {
	c.pending.Add(1)
	ch := make(chan time.Time, 1)
	go func() {
		<-c.release
		ch <- c.now
	}()
	return ch
}

type recordingObserver struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (o *recordingObserver) ObserveWait(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits = append(o.waits, d)
}

func TestNew_RejectsOutOfRange(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(11)
	require.Error(t, err)

	l, err := New(5)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, l.Interval())
}

func TestAcquire_FirstCallIsImmediate(t *testing.T) {
	clock := newSteppingClock()
	l, err := New(5, WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.waits)
}

func TestAcquire_SequentialCallsArePaced(t *testing.T) {
	clock := newSteppingClock()
	obs := &recordingObserver{}
	l, err := New(5, WithClock(clock), WithObserver(obs))
	require.NoError(t, err)

	const n = 6
	for i := 0; i < n; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	assert.Equal(t, time.Duration(n-1)*200*time.Millisecond, clock.total())
	for _, w := range clock.waits {
		assert.Equal(t, 200*time.Millisecond, w)
	}
	assert.Len(t, obs.waits, n)
	assert.Zero(t, obs.waits[0])
}

func TestAcquire_IdleGapNeedsNoWait(t *testing.T) {
	clock := newSteppingClock()
	l, err := New(5, WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	clock.mu.Lock()
	clock.now = clock.now.Add(time.Second)
	clock.mu.Unlock()
	require.NoError(t, l.Acquire(context.Background()))

	assert.Empty(t, clock.waits)
}

func TestAcquire_WallClockLowerBound(t *testing.T) {
	l, err := New(10)
	require.NoError(t, err)

	const n = 4
	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, time.Duration(n-1)*100*time.Millisecond)
}

func TestAcquire_InFlightNeverExceedsLimit(t *testing.T) {
	clock := &blockingClock{now: time.Now(), release: make(chan struct{})}
	l, err := New(5, WithClock(clock))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(context.Background())
		}()
	}

	require.Eventually(t, func() bool {
		return clock.pending.Load() == 5 && l.InFlight() == 5
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(5), clock.pending.Load())
	assert.Equal(t, int64(5), l.InFlight())

	close(clock.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Zero(t, l.InFlight())
}

func TestAcquire_CancelledWaitDoesNotDelayNextCaller(t *testing.T) {
	l, err := New(2)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, l.Acquire(context.Background()))
	elapsed := time.Since(start)

	// Without the rollback the third call would land a full second after the first.
	assert.GreaterOrEqual(t, elapsed, 450*time.Millisecond)
	assert.Less(t, elapsed, 900*time.Millisecond)
}

func TestAcquire_AlreadyCancelledContext(t *testing.T) {
	clock := newSteppingClock()
	l, err := New(5, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Acquire(ctx), context.Canceled)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.waits, "a cancelled caller must not consume the first slot")
}
