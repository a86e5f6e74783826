package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by all engine
// instances.
const DefaultRelayChannel = "auction:events"

// Relay bridges hubs across server instances over Redis pub/sub: events
// published by any instance are delivered to the rooms of every instance.
// The relay replaces the hub as the engine's Broadcaster — local delivery
// happens through the subscription like everyone else's, so an event takes
// exactly one path to each room.
type Relay struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
}

// relayEnvelope carries an event and its room across the wire.
type relayEnvelope struct {
	AuctionID string `json:"auction_id"`
	Event     Event  `json:"event"`
}

// NewRelay creates a relay publishing on the given channel; an empty
// channel selects DefaultRelayChannel.
func NewRelay(rdb *redis.Client, hub *Hub, channel string) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{rdb: rdb, hub: hub, channel: channel}
}

// BroadcastToRoom implements Broadcaster by publishing to Redis. A failure
// here means no instance (including this one) delivers the event; the
// caller logs it and clients recover from their next snapshot fetch.
func (r *Relay) BroadcastToRoom(auctionID string, ev Event) error {
	data, err := json.Marshal(relayEnvelope{AuctionID: auctionID, Event: ev})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and forwards received events to the
// local hub until ctx is cancelled. Must be called in a goroutine.
func (r *Relay) Run(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	slog.Info("event relay subscribed", "channel", r.channel)
	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.deliver([]byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

// deliver forwards one wire payload to the local hub. Malformed payloads
// are logged and dropped; a peer instance cannot take this one's rooms down.
func (r *Relay) deliver(payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Warn("relay received malformed event", "err", err)
		return
	}
	if err := r.hub.BroadcastToRoom(env.AuctionID, env.Event); err != nil {
		slog.Warn("relay local fan-out failed", "auction", env.AuctionID, "err", err)
	}
}
