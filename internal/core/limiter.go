package core

// limiter.go caps how many synchronizations run at once.
//
// Each sync holds a slot from Acquire until the returned release func is
// called. When every slot is taken, Acquire waits up to maxWait and then
// fails with ErrTooManySyncs. WaitForDrain lets shutdown wait for in-flight
// syncs.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTooManySyncs is returned when no sync slot frees up in time.
var ErrTooManySyncs = errors.New("too many concurrent syncs, please try again later")

// DefaultMaxConcurrentSyncs is the default number of parallel syncs.
const DefaultMaxConcurrentSyncs = 4

// DefaultMaxWaitTime is how long Acquire waits for a slot.
const DefaultMaxWaitTime = 30 * time.Second

// SyncLimiter is a counting semaphore for sync runs.
type SyncLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64

	mu      sync.Mutex
	drained chan struct{} // closed whenever active is zero
}

// NewSyncLimiter allows maxConcurrent syncs; callers wait at most maxWait.
func NewSyncLimiter(maxConcurrent int, maxWait time.Duration) *SyncLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSyncs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	drained := make(chan struct{})
	close(drained)
	return &SyncLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		drained: drained,
	}
}

// Acquire takes a slot. On success the returned func must be called exactly
// once to give it back; extra calls are no-ops.
func (l *SyncLimiter) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return l.taken(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTooManySyncs
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *SyncLimiter) TryAcquire() (release func(), ok bool) {
	select {
	case l.slots <- struct{}{}:
		return l.taken(), true
	default:
		return nil, false
	}
}

func (l *SyncLimiter) taken() func() {
	l.mu.Lock()
	if l.active.Add(1) == 1 {
		l.drained = make(chan struct{})
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.active.Add(-1) == 0 {
				close(l.drained)
			}
			l.mu.Unlock()
			<-l.slots
		})
	}
}

// ActiveCount returns the number of syncs holding a slot.
func (l *SyncLimiter) ActiveCount() int { return int(l.active.Load()) }

// MaxConcurrent returns the slot count.
func (l *SyncLimiter) MaxConcurrent() int { return cap(l.slots) }

// Available returns the number of free slots.
func (l *SyncLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no sync holds a slot or ctx ends.
func (l *SyncLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	drained := l.drained
	l.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LimiterStatus is a point-in-time view of a SyncLimiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports the limiter state for health endpoints.
func (l *SyncLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
