// Package store defines the persistence interface for the auction engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
)

// ErrNotFound is returned when the requested auction does not exist.
var ErrNotFound = errors.New("store: auction not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Bid rows are append-only:
// they are inserted, never updated or deleted.
type Store interface {
	// --- Auction operations ---

	// CreateAuction persists a new auction.
	CreateAuction(ctx context.Context, auction *model.Auction) error

	// GetAuction retrieves an auction by its ID.
	GetAuction(ctx context.Context, id string) (*model.Auction, error)

	// ListAuctions returns all auctions, or only those in the given state
	// when state is non-empty.
	ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error)

	// ListAuctionsDue returns auctions requiring a lifecycle transition at
	// the given instant: scheduled auctions whose window has opened (or
	// already closed), and live auctions whose window has closed.
	ListAuctionsDue(ctx context.Context, now time.Time) ([]model.Auction, error)

	// TransitionAuction atomically moves an auction from one state to
	// another, recording the terminal outcome. It is a compare-and-swap:
	// the update applies only if the current state equals from, and the
	// boolean result reports whether it did. A false result with nil error
	// means another writer transitioned the auction first.
	TransitionAuction(ctx context.Context, id string, from, to model.AuctionState, winnerID string, finalAmount decimal.Decimal) (bool, error)

	// --- Append-only bid ledger ---

	// InsertBid appends an immutable bid record.
	InsertBid(ctx context.Context, bid *model.Bid) error

	// GetBidsByAuction returns all bids for an auction in sequence order.
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)

	// GetLatestBid returns the bid with the highest sequence number for an
	// auction, or (nil, nil) when the auction has no bids. Because accepted
	// amounts strictly increase, this is also the current highest bid.
	GetLatestBid(ctx context.Context, auctionID string) (*model.Bid, error)

	// GetStandingBids returns the latest bid per bidder, sorted by amount
	// descending, with the top entry flagged as winning.
	GetStandingBids(ctx context.Context, auctionID string) ([]model.StandingBid, error)
}
