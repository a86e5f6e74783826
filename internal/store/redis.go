package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for auction records and standing-bid snapshots. Writes go to the
// primary store and invalidate the cache; reads check Redis first then fall
// back to the primary.
//
// The bid acceptance engine's validation reads run under the per-auction
// lock, and every write path invalidates before the lock is released, so a
// cached read inside the critical section never observes a stale highest bid.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	if err := s.primary.CreateAuction(ctx, a); err != nil {
		return err
	}
	s.cacheAuction(ctx, a)
	return nil
}

func (s *CachedStore) TransitionAuction(ctx context.Context, id string, from, to model.AuctionState, winnerID string, finalAmount decimal.Decimal) (bool, error) {
	swapped, err := s.primary.TransitionAuction(ctx, id, from, to, winnerID, finalAmount)
	if err != nil {
		return false, err
	}
	if swapped {
		// Invalidate; next read re-populates from the primary.
		s.rdb.Del(ctx, auctionKey(id))
	}
	return swapped, nil
}

func (s *CachedStore) InsertBid(ctx context.Context, bid *model.Bid) error {
	if err := s.primary.InsertBid(ctx, bid); err != nil {
		return err
	}
	s.rdb.Del(ctx, standingKey(bid.AuctionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	data, err := s.rdb.Get(ctx, auctionKey(id)).Bytes()
	if err == nil {
		var a model.Auction
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAuction(ctx, a)
	return a, nil
}

func (s *CachedStore) GetStandingBids(ctx context.Context, auctionID string) ([]model.StandingBid, error) {
	data, err := s.rdb.Get(ctx, standingKey(auctionID)).Bytes()
	if err == nil {
		var standing []model.StandingBid
		if json.Unmarshal(data, &standing) == nil {
			return standing, nil
		}
	}

	standing, err := s.primary.GetStandingBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(standing); err == nil {
		s.rdb.Set(ctx, standingKey(auctionID), data, s.ttl)
	}
	return standing, nil
}

// --- Passthrough (not cached) ---

// GetLatestBid is never cached: it is the acceptance engine's validation
// read and must always come from the source of truth.
func (s *CachedStore) GetLatestBid(ctx context.Context, auctionID string) (*model.Bid, error) {
	return s.primary.GetLatestBid(ctx, auctionID)
}

func (s *CachedStore) ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error) {
	return s.primary.ListAuctions(ctx, state)
}

func (s *CachedStore) ListAuctionsDue(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return s.primary.ListAuctionsDue(ctx, now)
}

func (s *CachedStore) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	return s.primary.GetBidsByAuction(ctx, auctionID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAuction(ctx context.Context, a *model.Auction) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, auctionKey(a.ID), data, s.ttl)
	}
}

func auctionKey(id string) string  { return fmt.Sprintf("auction:%s", id) }
func standingKey(id string) string { return fmt.Sprintf("standing:%s", id) }
