package auction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 4096
	sendBufferSize = 64
)

// errChannelSaturated is returned when the hub's broadcast buffer is full
// and an event had to be dropped. The ledger write is never rolled back for
// this; clients recover via their next snapshot fetch.
var errChannelSaturated = errors.New("auction: event channel saturated, event dropped")

// clientFrame is a JSON message from a connected client.
type clientFrame struct {
	Type      string `json:"type"` // join_room | leave_room | place_bid
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type joinRequest struct {
	c         *client
	auctionID string
}

type leaveRequest struct {
	c         *client
	auctionID string
}

type roomMessage struct {
	auctionID string
	data      []byte
}

// Hub routes room membership and fans accepted-bid and lifecycle events out
// to every connection subscribed to an auction's room. Subscriptions are
// ephemeral: they exist only while the connection is up and carry no
// business state. Delivery is best-effort — a dead or slow subscriber is
// dropped, never queued for.
type Hub struct {
	engine *Engine // bound after construction; routes place_bid frames

	register   chan *client
	unregister chan *client
	join       chan joinRequest
	leave      chan leaveRequest
	broadcast  chan roomMessage

	rooms map[string]map[*client]struct{}
}

// NewHub creates a hub. Bind the engine with BindEngine before Run.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		join:       make(chan joinRequest),
		leave:      make(chan leaveRequest),
		broadcast:  make(chan roomMessage, 256),
		rooms:      make(map[string]map[*client]struct{}),
	}
}

// BindEngine wires the engine used to process place_bid frames. Must be
// called before Run.
func (h *Hub) BindEngine(e *Engine) { h.engine = e }

// Run starts the hub's main event loop. Must be called in a goroutine.
// Room state is owned exclusively by this loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.register:
			metrics.WebSocketClients.Inc()

		case c := <-h.unregister:
			h.dropClient(c)

		case req := <-h.join:
			if _, ok := req.c.rooms[req.auctionID]; !ok {
				room := h.rooms[req.auctionID]
				if room == nil {
					room = make(map[*client]struct{})
					h.rooms[req.auctionID] = room
				}
				room[req.c] = struct{}{}
				req.c.rooms[req.auctionID] = struct{}{}
				metrics.RoomSubscribers.Inc()
			}
			// Ack (idempotent) so the client knows broadcasts will reach it
			// from here on and can fetch its snapshot.
			req.c.sendEvent(Event{Type: EventRoomJoined, AuctionID: req.auctionID})

		case req := <-h.leave:
			h.dropFromRoom(req.c, req.auctionID)

		case msg := <-h.broadcast:
			for c := range h.rooms[msg.auctionID] {
				select {
				case c.send <- msg.data:
				default:
					// Slow consumer: drop the connection rather than block
					// the fan-out for everyone else.
					h.dropClient(c)
				}
			}
		}
	}
}

// dropClient removes a client from every room and signals its pumps to
// shut down. Idempotent: a slow-consumer drop followed by the read pump's
// unregister must not close twice or skew the gauges. The send channel is
// never closed — the read pump writes caller-only replies to it from its
// own goroutine, so shutdown is signalled via done instead.
func (h *Hub) dropClient(c *client) {
	if c.closed {
		return
	}
	for auctionID := range c.rooms {
		h.dropFromRoom(c, auctionID)
	}
	c.closed = true
	close(c.done)
	metrics.WebSocketClients.Dec()
}

// dropFromRoom removes a subscription; no-op if absent.
func (h *Hub) dropFromRoom(c *client, auctionID string) {
	room := h.rooms[auctionID]
	if room == nil {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	delete(c.rooms, auctionID)
	metrics.RoomSubscribers.Dec()
	if len(room) == 0 {
		delete(h.rooms, auctionID)
	}
}

// BroadcastToRoom implements Broadcaster. The enqueue is non-blocking so a
// saturated channel can never stall bid acceptance.
func (h *Hub) BroadcastToRoom(auctionID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- roomMessage{auctionID: auctionID, data: data}:
		return nil
	default:
		metrics.EventsDropped.Inc()
		return errChannelSaturated
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
		userID: r.URL.Query().Get("user_id"),
	}

	slog.Info("ws client connected", "user", c.userID)
	h.register <- c
	go c.writePump()
	go c.readPump()
}

// client is one WebSocket connection. The rooms map is owned by the hub's
// run loop; the read and write pumps never touch it.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	rooms  map[string]struct{}
	userID string // owned by readPump after construction
	closed bool   // owned by the hub run loop
}

// readPump consumes frames from the connection and routes them: room
// membership changes to the hub loop, bid submissions to the engine.
// Validation failures go back to this connection only.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendEvent(Event{Type: EventError, Message: "malformed frame"})
			continue
		}

		switch frame.Type {
		case "join_room":
			// userID is owned by this goroutine: placeBid reads it for frames
			// that omit user_id, so it must never be written from the hub loop.
			if frame.UserID != "" {
				c.userID = frame.UserID
			}
			c.hub.join <- joinRequest{c: c, auctionID: frame.AuctionID}
		case "leave_room":
			c.hub.leave <- leaveRequest{c: c, auctionID: frame.AuctionID}
		case "place_bid":
			c.placeBid(frame)
		default:
			c.sendEvent(Event{Type: EventError, Message: "unknown frame type: " + frame.Type})
		}
	}
}

func (c *client) placeBid(frame clientFrame) {
	bidderID := frame.UserID
	if bidderID == "" {
		bidderID = c.userID
	}

	amount, err := decimal.NewFromString(frame.Amount)
	if err != nil {
		c.sendEvent(Event{Type: EventError, AuctionID: frame.AuctionID, Message: "invalid amount"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	acc, err := c.hub.engine.PlaceBid(ctx, frame.AuctionID, bidderID, amount)
	if err != nil {
		ev := Event{Type: EventError, AuctionID: frame.AuctionID, Message: err.Error()}
		var tooLow *BidTooLowError
		if errors.As(err, &tooLow) {
			ev.Minimum = tooLow.Minimum.String()
		}
		c.sendEvent(ev)
		return
	}

	// Direct response to the caller. The room broadcast may also arrive;
	// views deduplicate by sequence number, so the duplicate is harmless.
	c.sendEvent(Event{
		Type:           EventPlaceBid,
		AuctionID:      acc.Bid.AuctionID,
		BidderID:       acc.Bid.BidderID,
		Amount:         acc.Bid.Amount.String(),
		SequenceNumber: acc.Bid.SequenceNumber,
		AcceptedAt:     fmtTime(acc.Bid.AcceptedAt),
	})
}

// sendEvent queues an event for this connection only; drops it if the
// client is too slow to keep up.
func (c *client) sendEvent(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump drains the send channel and keeps the connection alive through
// proxies with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
