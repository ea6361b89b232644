package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "AAPL")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	a, err := l.Lock(ctx, "A")
	if err != nil {
		t.Fatalf("Lock A: %v", err)
	}
	defer a()

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	b, err := l.Lock(cctx, "B")
	if err != nil {
		t.Fatalf("Lock B should not wait on A: %v", err)
	}
	b()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "X")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "X"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	release()
	release() // second call is a no-op

	again, err := l.Lock(context.Background(), "X")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
