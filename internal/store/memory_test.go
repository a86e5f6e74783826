package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
	"github.com/openlot/auction-engine/internal/store"
)

func newAuction(id string, state model.AuctionState, start, end time.Time) *model.Auction {
	return &model.Auction{
		ID:            id,
		ProductID:     "prod-" + id,
		SellerID:      "seller-1",
		Currency:      "USD",
		StartBidPrice: decimal.NewFromInt(100),
		BidIncrement:  decimal.NewFromInt(10),
		Quantity:      1,
		StartTime:     start,
		EndTime:       end,
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := newAuction("a1", model.StateScheduled, now, now.Add(time.Hour))
	if err := s.CreateAuction(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateAuction(ctx, a); err == nil {
		t.Error("expected duplicate create to fail")
	}

	got, err := s.GetAuction(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProductID != "prod-a1" {
		t.Errorf("unexpected auction: %+v", got)
	}

	// Returned value is a copy; mutating it must not leak into the store.
	got.State = model.StateEnded
	again, _ := s.GetAuction(ctx, "a1")
	if again.State != model.StateScheduled {
		t.Error("store state mutated through a returned copy")
	}

	if _, err := s.GetAuction(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_TransitionIsCompareAndSwap(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	s.CreateAuction(ctx, newAuction("a1", model.StateLive, now.Add(-time.Hour), now.Add(time.Hour)))

	swapped, err := s.TransitionAuction(ctx, "a1", model.StateLive, model.StateEnded, "alice", decimal.NewFromInt(120))
	if err != nil || !swapped {
		t.Fatalf("expected swap, got swapped=%v err=%v", swapped, err)
	}

	a, _ := s.GetAuction(ctx, "a1")
	if a.State != model.StateEnded || a.WinnerID != "alice" || !a.FinalAmount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("transition did not record outcome: %+v", a)
	}

	// Stale expectation loses without error.
	swapped, err = s.TransitionAuction(ctx, "a1", model.StateLive, model.StateEnded, "bob", decimal.NewFromInt(130))
	if err != nil {
		t.Fatalf("stale transition errored: %v", err)
	}
	if swapped {
		t.Error("stale transition must not swap")
	}

	if _, err := s.TransitionAuction(ctx, "missing", model.StateLive, model.StateEnded, "", decimal.Zero); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListAuctionsDue(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	// Due: scheduled past its start, live past its end.
	s.CreateAuction(ctx, newAuction("due-start", model.StateScheduled, now.Add(-time.Minute), now.Add(time.Hour)))
	s.CreateAuction(ctx, newAuction("due-end", model.StateLive, now.Add(-2*time.Hour), now.Add(-time.Minute)))
	// Not due: future start, running live, terminal states.
	s.CreateAuction(ctx, newAuction("future", model.StateScheduled, now.Add(time.Hour), now.Add(2*time.Hour)))
	s.CreateAuction(ctx, newAuction("running", model.StateLive, now.Add(-time.Hour), now.Add(time.Hour)))
	s.CreateAuction(ctx, newAuction("done", model.StateEnded, now.Add(-2*time.Hour), now.Add(-time.Hour)))

	due, err := s.ListAuctionsDue(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	ids := make(map[string]bool, len(due))
	for _, a := range due {
		ids[a.ID] = true
	}
	if len(due) != 2 || !ids["due-start"] || !ids["due-end"] {
		t.Errorf("expected due-start and due-end, got %v", ids)
	}
}

func TestMemoryStore_LedgerAndLatestBid(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	latest, err := s.GetLatestBid(ctx, "a1")
	if err != nil {
		t.Fatalf("latest on empty ledger: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil latest for empty ledger, got %+v", latest)
	}

	for i, amt := range []int64{110, 120, 130} {
		s.InsertBid(ctx, &model.Bid{
			ID:             "b" + string(rune('1'+i)),
			AuctionID:      "a1",
			BidderID:       "alice",
			Amount:         decimal.NewFromInt(amt),
			SequenceNumber: int64(i + 1),
			AcceptedAt:     time.Now().UTC(),
		})
	}

	latest, _ = s.GetLatestBid(ctx, "a1")
	if latest == nil || latest.SequenceNumber != 3 || !latest.Amount.Equal(decimal.NewFromInt(130)) {
		t.Errorf("unexpected latest bid: %+v", latest)
	}

	bids, _ := s.GetBidsByAuction(ctx, "a1")
	if len(bids) != 3 {
		t.Fatalf("expected full ledger, got %d entries", len(bids))
	}
}

func TestMemoryStore_StandingBidsDerivation(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	insert := func(seq int64, bidder string, amt int64) {
		s.InsertBid(ctx, &model.Bid{
			AuctionID:      "a1",
			BidderID:       bidder,
			Amount:         decimal.NewFromInt(amt),
			SequenceNumber: seq,
			AcceptedAt:     time.Now().UTC(),
		})
	}
	insert(1, "alice", 110)
	insert(2, "bob", 120)
	insert(3, "alice", 130)

	standing, err := s.GetStandingBids(ctx, "a1")
	if err != nil {
		t.Fatalf("standing: %v", err)
	}
	if len(standing) != 2 {
		t.Fatalf("expected one standing bid per bidder, got %d", len(standing))
	}
	if standing[0].BidderID != "alice" || !standing[0].CurrentAmount.Equal(decimal.NewFromInt(130)) {
		t.Errorf("expected alice's latest bid on top, got %+v", standing[0])
	}
	if standing[0].SequenceNumber != 3 {
		t.Errorf("standing bid must carry the latest sequence, got %d", standing[0].SequenceNumber)
	}
	if !standing[0].IsWinning || standing[1].IsWinning {
		t.Error("exactly the top standing bid is winning")
	}
}
