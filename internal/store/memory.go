package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]*model.Auction
	ledger   map[string][]model.Bid // auctionID → bids in sequence order
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]*model.Auction),
		ledger:   make(map[string][]model.Bid),
	}
}

func (s *MemoryStore) CreateAuction(_ context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[a.ID]; exists {
		return fmt.Errorf("auction %s already exists", a.ID)
	}

	// Store a copy to avoid external mutation.
	copy := *a
	s.auctions[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAuction(_ context.Context, id string) (*model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAuctions(_ context.Context, state model.AuctionState) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if state != "" && a.State != state {
			continue
		}
		auctions = append(auctions, *a)
	}
	sort.Slice(auctions, func(i, j int) bool {
		return auctions[i].CreatedAt.After(auctions[j].CreatedAt)
	})
	return auctions, nil
}

func (s *MemoryStore) ListAuctionsDue(_ context.Context, now time.Time) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []model.Auction
	for _, a := range s.auctions {
		switch a.State {
		case model.StateScheduled:
			if !now.Before(a.StartTime) {
				due = append(due, *a)
			}
		case model.StateLive:
			if !now.Before(a.EndTime) {
				due = append(due, *a)
			}
		}
	}
	return due, nil
}

func (s *MemoryStore) TransitionAuction(_ context.Context, id string, from, to model.AuctionState, winnerID string, finalAmount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if a.State != from {
		return false, nil
	}
	a.State = to
	a.WinnerID = winnerID
	a.FinalAmount = finalAmount
	return true, nil
}

// SetWindow rewrites an auction's timing window in place. A development
// hook for moving auctions through their lifecycle in tests; not part of
// the Store interface.
func (s *MemoryStore) SetWindow(_ context.Context, id string, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	a.StartTime = start
	a.EndTime = end
	return nil
}

func (s *MemoryStore) InsertBid(_ context.Context, bid *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger[bid.AuctionID] = append(s.ledger[bid.AuctionID], *bid)
	return nil
}

func (s *MemoryStore) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := s.ledger[auctionID]
	result := make([]model.Bid, len(bids))
	copy(result, bids)
	return result, nil
}

func (s *MemoryStore) GetLatestBid(_ context.Context, auctionID string) (*model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := s.ledger[auctionID]
	if len(bids) == 0 {
		return nil, nil
	}
	latest := bids[len(bids)-1]
	return &latest, nil
}

// GetStandingBids derives the latest bid per bidder from the ledger and
// sorts by amount descending. The top entry is the current winner.
func (s *MemoryStore) GetStandingBids(_ context.Context, auctionID string) ([]model.StandingBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]model.Bid)
	for _, b := range s.ledger[auctionID] {
		latest[b.BidderID] = b // ledger is in sequence order
	}

	standing := make([]model.StandingBid, 0, len(latest))
	for _, b := range latest {
		standing = append(standing, model.StandingBid{
			BidderID:       b.BidderID,
			CurrentAmount:  b.Amount,
			SequenceNumber: b.SequenceNumber,
			CreatedAt:      b.AcceptedAt,
		})
	}
	sort.Slice(standing, func(i, j int) bool {
		return standing[i].CurrentAmount.GreaterThan(standing[j].CurrentAmount)
	})
	if len(standing) > 0 {
		standing[0].IsWinning = true
	}
	return standing, nil
}
