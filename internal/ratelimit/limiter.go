// Package ratelimit paces outbound calls to the remote table service.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	MinPerSecond     = 1
	MaxPerSecond     = 10
	DefaultPerSecond = 5
)

// Clock abstracts time so tests can drive the limiter deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WaitObserver receives the time each caller spent paced by the limiter.
type WaitObserver interface {
	ObserveWait(d time.Duration)
}

// Limiter bounds concurrent acquisitions to perSecond and spaces issued
// calls at least 1/perSecond apart. One instance is shared by every command.
type Limiter struct {
	gate     *semaphore.Weighted
	pace     *rate.Limiter
	clock    Clock
	observer WaitObserver
	inFlight atomic.Int64
	interval time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithObserver reports pacing waits to o.
func WithObserver(o WaitObserver) Option {
	return func(l *Limiter) { l.observer = o }
}

// New creates a limiter allowing perSecond calls per second.
func New(perSecond int, opts ...Option) (*Limiter, error) {
	if perSecond < MinPerSecond || perSecond > MaxPerSecond {
		return nil, fmt.Errorf("rate limit must be between %d and %d per second, got %d", MinPerSecond, MaxPerSecond, perSecond)
	}
	l := &Limiter{
		gate:     semaphore.NewWeighted(int64(perSecond)),
		pace:     rate.NewLimiter(rate.Limit(perSecond), 1),
		clock:    realClock{},
		interval: time.Second / time.Duration(perSecond),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Interval is the minimum spacing between two issued calls.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// InFlight returns the number of callers currently holding the gate.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Acquire blocks until the caller may issue its call. It returns ctx.Err()
// if ctx ends first; an abandoned wait gives its slot back so it never
// delays later callers.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inFlight.Add(1)
	defer func() {
		l.inFlight.Add(-1)
		l.gate.Release(1)
	}()

	now := l.clock.Now()
	r := l.pace.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limiter cannot satisfy reservation")
	}
	delay := r.DelayFrom(now)
	if l.observer != nil {
		l.observer.ObserveWait(delay)
	}
	if delay <= 0 {
		return nil
	}

	select {
	case <-l.clock.After(delay):
		return nil
	case <-ctx.Done():
		r.CancelAt(l.clock.Now())
		return ctx.Err()
	}
}
