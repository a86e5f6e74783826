package auction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/auction"
	"github.com/openlot/auction-engine/internal/model"
	"github.com/openlot/auction-engine/internal/store"
)

func newSchedulerEnv(t *testing.T) (*auction.Scheduler, *auction.Engine, *store.MemoryStore, *eventRecorder) {
	t.Helper()
	ms := store.NewMemoryStore()
	rec := &eventRecorder{}
	eng := auction.NewEngine(ms, rec, 0)
	return auction.NewScheduler(eng, 0), eng, ms, rec
}

func TestSweep_OpensScheduledAuction(t *testing.T) {
	sched, _, ms, rec := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10, func(a *model.Auction) {
		a.State = model.StateScheduled
	})

	if err := sched.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	a, _ := ms.GetAuction(context.Background(), "a1")
	if a.State != model.StateLive {
		t.Errorf("expected live, got %s", a.State)
	}
	if len(rec.byType(auction.EventAuctionStarted)) != 1 {
		t.Error("expected auction_started broadcast")
	}
}

func TestSweep_IgnoresFutureAuction(t *testing.T) {
	sched, _, ms, _ := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10, func(a *model.Auction) {
		a.State = model.StateScheduled
		a.StartTime = time.Now().UTC().Add(time.Hour)
		a.EndTime = time.Now().UTC().Add(2 * time.Hour)
	})

	if err := sched.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	a, _ := ms.GetAuction(context.Background(), "a1")
	if a.State != model.StateScheduled {
		t.Errorf("expected scheduled, got %s", a.State)
	}
}

func TestSweep_EndsExpiredAuctionWithWinner(t *testing.T) {
	sched, eng, ms, rec := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10)
	ctx := context.Background()

	if _, err := eng.PlaceBid(ctx, "a1", "alice", d(110)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := eng.PlaceBid(ctx, "a1", "bob", d(120)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	// Close the window, then sweep.
	expire(t, ms, "a1")

	if err := sched.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	a, _ := ms.GetAuction(ctx, "a1")
	if a.State != model.StateEnded {
		t.Fatalf("expected ended, got %s", a.State)
	}
	if a.WinnerID != "bob" {
		t.Errorf("expected winner bob, got %q", a.WinnerID)
	}
	if !a.FinalAmount.Equal(d(120)) {
		t.Errorf("expected final amount 120, got %s", a.FinalAmount)
	}

	events := rec.byType(auction.EventAuctionEnded)
	if len(events) != 1 {
		t.Fatalf("expected 1 auction_ended event, got %d", len(events))
	}
	if events[0].WinnerID != "bob" || events[0].FinalAmount != "120" {
		t.Errorf("unexpected outcome event: %+v", events[0])
	}

	// The ledger is frozen, never deleted.
	bids, _ := ms.GetBidsByAuction(ctx, "a1")
	if len(bids) != 2 {
		t.Errorf("expected ledger preserved with 2 entries, got %d", len(bids))
	}
}

func TestSweep_EndsAuctionWithNoBids(t *testing.T) {
	sched, _, ms, rec := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10)
	expire(t, ms, "a1")

	if err := sched.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	a, _ := ms.GetAuction(context.Background(), "a1")
	if a.State != model.StateEnded {
		t.Fatalf("expected ended, got %s", a.State)
	}
	if a.WinnerID != "" {
		t.Errorf("expected no winner, got %q", a.WinnerID)
	}

	events := rec.byType(auction.EventAuctionEnded)
	if len(events) != 1 || events[0].WinnerID != "" {
		t.Errorf("expected one winnerless auction_ended event, got %+v", events)
	}
}

func TestSweep_ReserveNotMet(t *testing.T) {
	sched, eng, ms, _ := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10, func(a *model.Auction) {
		a.ReservePrice = d(1000)
	})
	ctx := context.Background()

	if _, err := eng.PlaceBid(ctx, "a1", "alice", d(110)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	expire(t, ms, "a1")

	if err := sched.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	a, _ := ms.GetAuction(ctx, "a1")
	if a.State != model.StateEnded {
		t.Fatalf("expected ended, got %s", a.State)
	}
	if a.WinnerID != "" {
		t.Errorf("highest bid below reserve must not win, got winner %q", a.WinnerID)
	}
}

func TestSweep_ExpiredScheduledAuctionEndsWithoutGoingLive(t *testing.T) {
	sched, _, ms, rec := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10, func(a *model.Auction) {
		a.State = model.StateScheduled
	})
	expire(t, ms, "a1")

	if err := sched.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	a, _ := ms.GetAuction(context.Background(), "a1")
	if a.State != model.StateEnded {
		t.Errorf("expected ended, got %s", a.State)
	}
	if len(rec.byType(auction.EventAuctionStarted)) != 0 {
		t.Error("auction whose window already closed must not broadcast auction_started")
	}
}

func TestSweep_Idempotent(t *testing.T) {
	sched, _, ms, rec := newSchedulerEnv(t)
	seedAuction(t, ms, "a1", 100, 10)
	expire(t, ms, "a1")
	ctx := context.Background()

	if err := sched.Sweep(ctx); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	first, _ := ms.GetAuction(ctx, "a1")

	if err := sched.Sweep(ctx); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	second, _ := ms.GetAuction(ctx, "a1")

	if first.State != second.State || first.WinnerID != second.WinnerID {
		t.Errorf("double sweep changed state: %+v vs %+v", first, second)
	}
	if events := rec.byType(auction.EventAuctionEnded); len(events) != 1 {
		t.Errorf("expected at most one auction_ended per auction, got %d", len(events))
	}
}

// transitionFailStore fails CAS transitions for one auction to verify sweep
// isolation.
type transitionFailStore struct {
	store.Store
	failID string
}

func (s *transitionFailStore) TransitionAuction(ctx context.Context, id string, from, to model.AuctionState, winnerID string, finalAmount decimal.Decimal) (bool, error) {
	if id == s.failID {
		return false, errors.New("storage unavailable")
	}
	return s.Store.TransitionAuction(ctx, id, from, to, winnerID, finalAmount)
}

func TestSweep_IsolatesPerAuctionFailures(t *testing.T) {
	ms := store.NewMemoryStore()
	seedAuction(t, ms, "broken", 100, 10)
	seedAuction(t, ms, "healthy", 100, 10)
	expire(t, ms, "broken")
	expire(t, ms, "healthy")

	rec := &eventRecorder{}
	eng := auction.NewEngine(&transitionFailStore{Store: ms, failID: "broken"}, rec, 0)
	sched := auction.NewScheduler(eng, 0)

	if err := sched.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep must not fail as a whole: %v", err)
	}

	healthy, _ := ms.GetAuction(context.Background(), "healthy")
	if healthy.State != model.StateEnded {
		t.Errorf("failure on one auction must not block others, healthy is %s", healthy.State)
	}
}

// expire moves an auction's window entirely into the past.
func expire(t *testing.T, ms *store.MemoryStore, id string) {
	t.Helper()
	// MemoryStore hands out copies; mutate through a dedicated hook.
	if err := ms.SetWindow(context.Background(), id,
		time.Now().UTC().Add(-2*time.Hour), time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("failed to expire auction %s: %v", id, err)
	}
}
