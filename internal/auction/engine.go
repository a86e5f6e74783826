// Package auction implements the live auction core: the bid acceptance
// engine, the lifecycle scheduler, the room-based real-time event channel,
// and the client-side reconciliation view.
//
// All monetary values use shopspring/decimal — never float64 for money.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/metrics"
	"github.com/openlot/auction-engine/internal/model"
	"github.com/openlot/auction-engine/internal/store"
)

// DefaultLockWait bounds how long a bid submission may wait on the
// per-auction serialization boundary before failing with ErrAuctionBusy.
const DefaultLockWait = 2 * time.Second

// Engine is the single authority that decides whether a submitted bid
// becomes part of the ledger. Acceptance is serialized per auction via a
// keyed lock with a bounded wait; bids for different auctions proceed in
// parallel. The validation read and the ledger append happen inside the
// critical section, so two concurrent bids can never both pass validation
// against the same stale highest bid.
type Engine struct {
	store    store.Store
	hub      Broadcaster // nil disables broadcasting
	locks    *keyedMutex
	lockWait time.Duration
	now      func() time.Time
}

// NewEngine creates a bid acceptance engine. Pass nil for hub if real-time
// broadcasting is not needed. lockWait <= 0 selects DefaultLockWait.
func NewEngine(st store.Store, hub Broadcaster, lockWait time.Duration) *Engine {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &Engine{
		store:    st,
		hub:      hub,
		locks:    newKeyedMutex(),
		lockWait: lockWait,
		now:      time.Now,
	}
}

// Acceptance is the result of a successful bid submission.
type Acceptance struct {
	Bid            model.Bid       `json:"bid"`
	CurrentHighest decimal.Decimal `json:"current_highest"`
	NextMinimum    decimal.Decimal `json:"next_minimum"`
	AuctionEnded   bool            `json:"auction_ended"` // buy-now short circuit
}

// PlaceBid validates and sequences a bid submission. On acceptance the bid
// is appended to the ledger and a place_bid event is published to the
// auction's room; on rejection nothing is written or broadcast and the
// specific failure is returned to the caller only.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*Acceptance, error) {
	if auctionID == "" || bidderID == "" {
		metrics.BidsRejected.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: missing auction or bidder ID", ErrInvalidBid)
	}
	if !amount.IsPositive() {
		metrics.BidsRejected.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: non-positive amount", ErrInvalidBid)
	}

	start := time.Now()
	if err := e.locks.acquire(ctx, auctionID, e.lockWait); err != nil {
		metrics.BidsRejected.WithLabelValues("busy").Inc()
		return nil, err
	}
	defer e.locks.release(auctionID)

	acc, err := e.placeBidLocked(ctx, auctionID, bidderID, amount)
	if err != nil {
		metrics.BidsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	metrics.BidsAccepted.Inc()
	metrics.BidLatency.Observe(time.Since(start).Seconds())
	return acc, nil
}

// placeBidLocked runs the check-then-act sequence under the per-auction lock.
func (e *Engine) placeBidLocked(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*Acceptance, error) {
	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}

	now := e.now().UTC()
	if !a.Active(now) {
		return nil, ErrAuctionNotActive
	}

	latest, err := e.store.GetLatestBid(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	highest := a.StartBidPrice
	var lastSeq int64
	if latest != nil {
		highest = latest.Amount
		lastSeq = latest.SequenceNumber
	}

	// A bidder holding the highest standing bid may raise it by any strictly
	// positive step; everyone else must clear highest + increment.
	if latest != nil && latest.BidderID == bidderID {
		if !amount.GreaterThan(highest) {
			return nil, &BidTooLowError{Minimum: highest, SelfRaise: true}
		}
	} else {
		minimum := highest.Add(a.BidIncrement)
		if amount.LessThan(minimum) {
			return nil, &BidTooLowError{Minimum: minimum}
		}
	}

	bid := model.Bid{
		ID:             uuid.New().String(),
		AuctionID:      auctionID,
		BidderID:       bidderID,
		Amount:         amount,
		SequenceNumber: lastSeq + 1,
		AcceptedAt:     now,
	}

	if err := e.store.InsertBid(ctx, &bid); err != nil {
		return nil, err
	}

	acc := &Acceptance{
		Bid:            bid,
		CurrentHighest: amount,
		NextMinimum:    amount.Add(a.BidIncrement),
	}

	// Buy-now short circuit: the bid wins immediately and the auction ends
	// ahead of its scheduled close.
	if a.HasBuyNow() && amount.GreaterThanOrEqual(a.BuyNowPrice) {
		swapped, err := e.store.TransitionAuction(ctx, auctionID, model.StateLive, model.StateEnded, bidderID, amount)
		if err != nil {
			slog.Error("buy-now transition failed", "auction", auctionID, "err", err)
		} else if swapped {
			acc.AuctionEnded = true
			metrics.AuctionsEnded.WithLabelValues("buy_now").Inc()
		}
	}

	slog.Info("bid accepted",
		"auction", auctionID,
		"bidder", bidderID,
		"amount", amount.String(),
		"seq", bid.SequenceNumber,
		"buy_now", acc.AuctionEnded,
	)

	e.publish(Event{
		Type:           EventPlaceBid,
		AuctionID:      auctionID,
		BidderID:       bidderID,
		Amount:         amount.String(),
		SequenceNumber: bid.SequenceNumber,
		AcceptedAt:     fmtTime(bid.AcceptedAt),
	})
	if acc.AuctionEnded {
		e.publish(Event{
			Type:        EventAuctionEnded,
			AuctionID:   auctionID,
			WinnerID:    bidderID,
			FinalAmount: amount.String(),
		})
	}

	return acc, nil
}

// Cancel moves a scheduled or live auction to cancelled and notifies the
// room. Terminal auctions cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, auctionID string) (*model.Auction, error) {
	if err := e.locks.acquire(ctx, auctionID, e.lockWait); err != nil {
		return nil, err
	}
	defer e.locks.release(auctionID)

	a, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if a.State.Terminal() {
		return nil, ErrAuctionNotActive
	}

	swapped, err := e.store.TransitionAuction(ctx, auctionID, a.State, model.StateCancelled, "", decimal.Zero)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrAuctionNotActive
	}

	slog.Info("auction cancelled", "auction", auctionID, "prior_state", a.State)
	metrics.AuctionsEnded.WithLabelValues("cancelled").Inc()

	e.publish(Event{Type: EventAuctionEnded, AuctionID: auctionID})

	a.State = model.StateCancelled
	return a, nil
}

// publish sends an event to the auction's room. A channel failure never
// fails the accept operation: the ledger write has committed, so the failure
// is logged and clients recover from their next snapshot fetch.
func (e *Engine) publish(ev Event) {
	if e.hub == nil {
		return
	}
	if err := e.hub.BroadcastToRoom(ev.AuctionID, ev); err != nil {
		slog.Warn("event broadcast failed", "auction", ev.AuctionID, "type", ev.Type, "err", err)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		return "not_found"
	case errors.Is(err, ErrAuctionNotActive):
		return "not_active"
	case errors.Is(err, ErrBidTooLow):
		return "too_low"
	case errors.Is(err, ErrAuctionBusy):
		return "busy"
	default:
		return "error"
	}
}
