package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// Option customizes the clock of a limiter
type Option func(*clock)

type clock struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newClock(opts []Option) clock {
	c := clock{now: time.Now, sleep: sleepCtx}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithClock replaces time.Now and the blocking sleep, for tests
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *clock) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Interval admits at most one request per interval across all callers.
// Slots are handed out in call order, so N concurrent waiters start at
// least one interval apart.
type Interval struct {
	interval time.Duration
	next     time.Time
	clock    clock
	mu       sync.Mutex
}

// NewInterval creates a limiter with a global ceiling of one request per interval
func NewInterval(interval time.Duration, opts ...Option) *Interval {
	return &Interval{interval: interval, clock: newClock(opts)}
}

// Allow takes the next slot if it is already due
func (l *Interval) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.now()
	if now.Before(l.next) {
		return false
	}
	l.next = now.Add(l.interval)
	return true
}

// Wait reserves the next free slot and sleeps until it is due. A cancelled
// wait still consumes its slot.
func (l *Interval) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.clock.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	return l.clock.sleep(ctx, slot.Sub(now))
}

// Reset makes the next request immediately due
func (l *Interval) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = time.Time{}
}

// SlidingWindow caps the number of requests within a moving time window
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	clock       clock
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration, opts ...Option) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		clock:       newClock(opts),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, ok := sw.tryLocked()
	return ok
}

func (sw *SlidingWindow) tryLocked() (time.Duration, bool) {
	now := sw.clock.now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}
	return sw.windowSize - now.Sub(sw.requests[0]), false
}

// Wait blocks until a request is allowed
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		sw.mu.Lock()
		wait, ok := sw.tryLocked()
		sw.mu.Unlock()
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if err := sw.clock.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Pacer inserts a fixed pause after every processed entity
type Pacer struct {
	delay time.Duration
	clock clock
}

// NewPacer creates a pacer sleeping delay on every call to Pause
func NewPacer(delay time.Duration, opts ...Option) *Pacer {
	return &Pacer{delay: delay, clock: newClock(opts)}
}

// Delay returns the configured pause
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Pause sleeps for the pacing delay or until ctx is done
func (p *Pacer) Pause(ctx context.Context) error {
	return p.clock.sleep(ctx, p.delay)
}
