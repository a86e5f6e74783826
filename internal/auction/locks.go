package auction

import (
	"context"
	"sync"
	"time"
)

// keyedMutex serializes bid acceptance per auction. Bids for different
// auctions proceed fully in parallel; within one auction, acquisition waits
// at most the given timeout and then fails with ErrAuctionBusy so a slow
// validation cannot stall every bidder on a hot auction.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]chan struct{})}
}

// acquire blocks until the lock for key is held, the timeout elapses
// (ErrAuctionBusy), or ctx is cancelled.
func (k *keyedMutex) acquire(ctx context.Context, key string, timeout time.Duration) error {
	k.mu.Lock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	k.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrAuctionBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees the lock for key. Must only be called after a successful
// acquire.
func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	ch := k.locks[key]
	k.mu.Unlock()
	<-ch
}
