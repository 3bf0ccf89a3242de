package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := New(2)

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Submit(context.Background(), func(ctx context.Context) {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&maxRunning)
					if n <= old || atomic.CompareAndSwapInt32(&maxRunning, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxRunning); got > 2 {
		t.Fatalf("observed %d concurrent runs, pool size was 2", got)
	}
}

func TestPool_SubmitRunsFn(t *testing.T) {
	pool := New(1)
	ran := false
	err := pool.Submit(context.Background(), func(ctx context.Context) { ran = true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pool := New(1)
	// occupy the only permit
	done := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func(ctx context.Context) {
			<-done
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, func(ctx context.Context) {})
	if err == nil {
		t.Fatal("expected error from cancelled context with no permit available")
	}
	close(done)
}

func TestPool_ZeroOrNegativeSizeDefaultsToOne(t *testing.T) {
	pool := New(0)
	if !pool.TryAcquire() {
		t.Fatal("expected at least one permit")
	}
	if pool.TryAcquire() {
		t.Fatal("expected size to default to 1, not more")
	}
	pool.Release()
}

func TestPool_TryAcquireRelease(t *testing.T) {
	pool := New(1)
	if !pool.TryAcquire() {
		t.Fatal("expected permit to be available")
	}
	if pool.TryAcquire() {
		t.Fatal("expected no permit available while held")
	}
	pool.Release()
	if !pool.TryAcquire() {
		t.Fatal("expected permit to be available after release")
	}
	pool.Release()
}
