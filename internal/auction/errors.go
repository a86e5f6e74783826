package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrAuctionNotFound is returned when no auction exists for the given ID.
	ErrAuctionNotFound = errors.New("auction: auction not found")

	// ErrAuctionNotActive is returned when a bid arrives outside the live
	// window or after the auction has ended. Not retryable.
	ErrAuctionNotActive = errors.New("auction: auction is not active")

	// ErrBidTooLow is the sentinel wrapped by BidTooLowError.
	ErrBidTooLow = errors.New("auction: bid amount too low")

	// ErrAuctionBusy is returned when the per-auction serialization boundary
	// could not be acquired within the bounded wait. Safe to retry.
	ErrAuctionBusy = errors.New("auction: auction is busy, retry")

	// ErrInvalidBid is returned for malformed submissions (missing bidder,
	// non-positive amount).
	ErrInvalidBid = errors.New("auction: invalid bid")
)

// BidTooLowError reports a rejected bid along with the minimum acceptable
// amount, so the caller can resubmit with a corrected value.
type BidTooLowError struct {
	Minimum decimal.Decimal
	// SelfRaise is set when the bidder already holds the highest standing
	// bid; in that case any amount strictly above Minimum is acceptable,
	// without the increment requirement.
	SelfRaise bool
}

func (e *BidTooLowError) Error() string {
	if e.SelfRaise {
		return fmt.Sprintf("bid amount too low: must strictly exceed your standing bid of %s", e.Minimum)
	}
	return fmt.Sprintf("bid amount too low: minimum acceptable is %s", e.Minimum)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }
