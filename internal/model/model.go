// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionState is the lifecycle state of an auction. Transitions only move
// forward: scheduled → live → ended, or scheduled/live → cancelled.
type AuctionState string

const (
	StateScheduled AuctionState = "scheduled"
	StateLive      AuctionState = "live"
	StateEnded     AuctionState = "ended"
	StateCancelled AuctionState = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s AuctionState) Terminal() bool {
	return s == StateEnded || s == StateCancelled
}

// Auction is the persisted record of one auction's identity, timing window,
// price ladder, and terminal outcome. The state field is mutated only by the
// lifecycle scheduler and the bid acceptance engine, via compare-and-swap.
type Auction struct {
	ID            string          `json:"id" db:"id"`
	ProductID     string          `json:"product_id" db:"product_id"`
	SellerID      string          `json:"seller_id" db:"seller_id"`
	Currency      string          `json:"currency" db:"currency"`
	StartBidPrice decimal.Decimal `json:"start_bid_price" db:"start_bid_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment" db:"bid_increment"`
	ReservePrice  decimal.Decimal `json:"reserve_price" db:"reserve_price"` // zero = no reserve
	BuyNowPrice   decimal.Decimal `json:"buy_now_price" db:"buy_now_price"` // zero = no buy-now
	Quantity      int             `json:"quantity" db:"quantity"`
	StartTime     time.Time       `json:"start_time" db:"start_time"`
	EndTime       time.Time       `json:"end_time" db:"end_time"`
	State         AuctionState    `json:"state" db:"state"`
	WinnerID      string          `json:"winner_id,omitempty" db:"winner_id"`
	FinalAmount   decimal.Decimal `json:"final_amount" db:"final_amount"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// HasReserve reports whether a reserve price is set.
func (a *Auction) HasReserve() bool { return a.ReservePrice.IsPositive() }

// HasBuyNow reports whether a buy-now price is set.
func (a *Auction) HasBuyNow() bool { return a.BuyNowPrice.IsPositive() }

// Active reports whether the auction accepts bids at the given instant.
func (a *Auction) Active(now time.Time) bool {
	return a.State == StateLive && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// Bid is an immutable entry in the append-only per-auction ledger.
// A bidder raising their own standing bid is a new row, never a mutation.
// SequenceNumber is strictly increasing and gapless within one auction,
// starting at 1; because every accepted amount must exceed the previous
// highest, Amount is also strictly increasing with SequenceNumber.
type Bid struct {
	ID             string          `json:"id" db:"id"`
	AuctionID      string          `json:"auction_id" db:"auction_id"`
	BidderID       string          `json:"bidder_id" db:"bidder_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	SequenceNumber int64           `json:"sequence_number" db:"sequence_number"`
	AcceptedAt     time.Time       `json:"accepted_at" db:"accepted_at"`
}

// StandingBid is a bidder's most recent accepted bid for an auction, as
// returned by the snapshot read that initializes client views.
type StandingBid struct {
	BidderID       string          `json:"bidder_id"`
	CurrentAmount  decimal.Decimal `json:"current_amount"`
	SequenceNumber int64           `json:"sequence_number"`
	CreatedAt      time.Time       `json:"created_at"`
	IsWinning      bool            `json:"is_winning"`
}
