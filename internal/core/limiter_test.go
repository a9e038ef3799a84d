package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSyncLimiter_AcquireRelease(t *testing.T) {
	limiter := NewSyncLimiter(2, time.Second)
	ctx := context.Background()

	if got := limiter.Available(); got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}

	release1, err := limiter.Acquire(ctx)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	release2, err := limiter.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if got := limiter.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
	if got := limiter.Available(); got != 0 {
		t.Errorf("Available = %d, want 0", got)
	}

	release1()
	release1() // second call is a no-op
	if got := limiter.ActiveCount(); got != 1 {
		t.Errorf("after release, ActiveCount = %d, want 1", got)
	}
	release2()
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("after both releases, ActiveCount = %d, want 0", got)
	}
}

func TestSyncLimiter_RejectsWhenFull(t *testing.T) {
	limiter := NewSyncLimiter(1, 50*time.Millisecond)
	release, err := limiter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = limiter.Acquire(context.Background())
	if !errors.Is(err, ErrTooManySyncs) {
		t.Fatalf("Acquire on full limiter error = %v, want ErrTooManySyncs", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Acquire returned after %v, expected to wait", elapsed)
	}
}

func TestSyncLimiter_ContextCancellation(t *testing.T) {
	limiter := NewSyncLimiter(1, time.Minute)
	release, _ := limiter.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := limiter.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSyncLimiter_TryAcquire(t *testing.T) {
	limiter := NewSyncLimiter(1, time.Second)
	release, ok := limiter.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire on empty limiter failed")
	}
	if _, ok := limiter.TryAcquire(); ok {
		t.Error("TryAcquire on full limiter succeeded")
	}
	release()
	if _, ok := limiter.TryAcquire(); !ok {
		t.Error("TryAcquire after release failed")
	}
}

func TestSyncLimiter_UnblocksWaiter(t *testing.T) {
	limiter := NewSyncLimiter(1, time.Second)
	release, _ := limiter.Acquire(context.Background())

	done := make(chan error, 1)
	go func() {
		r, err := limiter.Acquire(context.Background())
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("waiter error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked")
	}
}

func TestSyncLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewSyncLimiter(3, time.Second)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		peak    int
		current int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := limiter.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after all done = %d", got)
	}
}

func TestSyncLimiter_WaitForDrain(t *testing.T) {
	limiter := NewSyncLimiter(2, time.Second)

	if err := limiter.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("WaitForDrain on idle limiter: %v", err)
	}

	release, _ := limiter.Acquire(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain: %v", err)
	}

	release2, _ := limiter.Acquire(context.Background())
	defer release2()
	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := limiter.WaitForDrain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain with busy slot = %v, want DeadlineExceeded", err)
	}
}

func TestSyncLimiter_Defaults(t *testing.T) {
	limiter := NewSyncLimiter(0, 0)
	status := limiter.Status()
	if status.MaxConcurrent != DefaultMaxConcurrentSyncs {
		t.Errorf("MaxConcurrent = %d, want %d", status.MaxConcurrent, DefaultMaxConcurrentSyncs)
	}
	if status.Available != DefaultMaxConcurrentSyncs || status.Active != 0 {
		t.Errorf("Status = %+v", status)
	}
}
