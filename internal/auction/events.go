package auction

import "time"

// Event types broadcast to auction rooms.
const (
	EventPlaceBid       = "place_bid"
	EventAuctionStarted = "auction_started"
	EventAuctionEnded   = "auction_ended"
	EventRoomJoined     = "room_joined"
	EventError          = "error"
)

// Event is a JSON message delivered to room subscribers. Delivery is
// best-effort and at-least-once; consumers must deduplicate and order by
// SequenceNumber, never by arrival order. Decimal amounts travel as strings.
type Event struct {
	Type           string `json:"type"`
	AuctionID      string `json:"auction_id"`
	BidderID       string `json:"bidder_id,omitempty"`
	Amount         string `json:"amount,omitempty"`
	SequenceNumber int64  `json:"sequence_number,omitempty"`
	AcceptedAt     string `json:"accepted_at,omitempty"` // RFC 3339
	WinnerID       string `json:"winner_id,omitempty"`
	FinalAmount    string `json:"final_amount,omitempty"`
	Message        string `json:"message,omitempty"`
	Minimum        string `json:"minimum,omitempty"`
}

// Broadcaster fans an event out to every connection subscribed to an
// auction's room. Implementations: the in-process Hub and the Redis relay
// that bridges hubs across server instances.
type Broadcaster interface {
	BroadcastToRoom(auctionID string, ev Event) error
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
