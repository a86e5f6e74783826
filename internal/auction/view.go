package auction

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/model"
)

// RoomView is a per-client projection of one auction's bid list, kept
// consistent despite duplicate and out-of-order event delivery. It is
// initialized from an authoritative snapshot and thereafter merges live
// place_bid events by sequence number: an event applies only if its
// sequence number exceeds the last one applied for that bidder. The current
// highest bid is always recomputed from the entries, never trusted from an
// event or stored as authoritative state.
type RoomView struct {
	mu         sync.RWMutex
	auctionID  string
	startPrice decimal.Decimal
	entries    map[string]viewEntry // bidderID → standing bid
	ended      bool
	winnerID   string
	finalAmt   decimal.Decimal
}

type viewEntry struct {
	amount decimal.Decimal
	seq    int64
}

// NewRoomView builds a view from a snapshot fetched on room join.
func NewRoomView(auctionID string, startPrice decimal.Decimal, snapshot []model.StandingBid) *RoomView {
	v := &RoomView{
		auctionID:  auctionID,
		startPrice: startPrice,
		entries:    make(map[string]viewEntry, len(snapshot)),
	}
	for _, sb := range snapshot {
		v.entries[sb.BidderID] = viewEntry{amount: sb.CurrentAmount, seq: sb.SequenceNumber}
	}
	return v
}

// Apply merges one event into the view and reports whether it changed
// anything. Duplicates and out-of-order place_bid events are discarded, so
// applying the same event twice leaves the view unchanged. Late place_bid
// events after auction_ended are ignored.
func (v *RoomView) Apply(ev Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ev.AuctionID != v.auctionID {
		return false
	}

	switch ev.Type {
	case EventPlaceBid:
		if v.ended {
			return false
		}
		amount, err := decimal.NewFromString(ev.Amount)
		if err != nil {
			return false
		}
		prev, exists := v.entries[ev.BidderID]
		if exists && ev.SequenceNumber <= prev.seq {
			return false
		}
		v.entries[ev.BidderID] = viewEntry{amount: amount, seq: ev.SequenceNumber}
		return true

	case EventAuctionEnded:
		if v.ended {
			return false
		}
		v.ended = true
		v.winnerID = ev.WinnerID
		if ev.FinalAmount != "" {
			v.finalAmt, _ = decimal.NewFromString(ev.FinalAmount)
		}
		return true
	}
	return false
}

// Highest returns the current highest bid: the maximum standing amount, or
// the start price when no bids are known. A pure derived value.
func (v *RoomView) Highest() decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()

	highest := v.startPrice
	for _, e := range v.entries {
		if e.amount.GreaterThan(highest) {
			highest = e.amount
		}
	}
	return highest
}

// StandingBid returns a bidder's current standing amount, if any.
func (v *RoomView) StandingBid(bidderID string) (decimal.Decimal, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	e, ok := v.entries[bidderID]
	return e.amount, ok
}

// Ended reports whether the terminal outcome has been applied; further bid
// submission should be disabled once it returns true.
func (v *RoomView) Ended() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ended
}

// Outcome returns the winner and final amount after the auction ended. An
// empty winner means the auction closed with no qualifying bid.
func (v *RoomView) Outcome() (winnerID string, finalAmount decimal.Decimal) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.winnerID, v.finalAmt
}
