package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_AcquireRelease(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	if err := km.acquire(ctx, "a1", time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	km.release("a1")
	if err := km.acquire(ctx, "a1", time.Second); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	km.release("a1")
}

func TestKeyedMutex_TimeoutWhileHeld(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	if err := km.acquire(ctx, "a1", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	err := km.acquire(ctx, "a1", 20*time.Millisecond)
	if !errors.Is(err, ErrAuctionBusy) {
		t.Fatalf("expected ErrAuctionBusy, got %v", err)
	}
	km.release("a1")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	if err := km.acquire(ctx, "a1", time.Second); err != nil {
		t.Fatalf("acquire a1: %v", err)
	}
	// Holding a1 must not block a2.
	if err := km.acquire(ctx, "a2", 20*time.Millisecond); err != nil {
		t.Fatalf("acquire a2 while a1 held: %v", err)
	}
	km.release("a1")
	km.release("a2")
}

func TestKeyedMutex_ContextCancellation(t *testing.T) {
	km := newKeyedMutex()

	if err := km.acquire(context.Background(), "a1", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := km.acquire(ctx, "a1", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	km.release("a1")
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	km := newKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := km.acquire(ctx, "a1", 5*time.Second); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			km.release("a1")
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one holder at a time, saw %d", maxSeen)
	}
}
