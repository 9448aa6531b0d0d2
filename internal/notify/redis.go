package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// republishQueueSize bounds how many notifications may wait for Redis.
const republishQueueSize = 256

// RedisBridge relays notifications between relay instances over a Redis
// Pub/Sub channel. It sits between the engine and the local fanout: local
// publishes go to the fanout and to the channel; notifications from other
// instances go to the local fanout only, so every observer sees a consistent
// view no matter which instance it is connected to and nothing loops back.
//
// Best-effort: a Redis outage degrades to single-instance behavior, it never
// blocks local delivery. The republish happens off the caller's goroutine so
// a slow Redis cannot stall the engine's critical section either.
type RedisBridge struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	local      *Fanout
	log        *slog.Logger

	queue chan []byte
}

var _ Publisher = (*RedisBridge)(nil)

type bridgeEnvelope struct {
	InstanceID   string `json:"instance_id"`
	Notification `json:"notification"`
}

func NewRedisBridge(rdb *redis.Client, channel, instanceID string, local *Fanout, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		rdb:        rdb,
		channel:    channel,
		instanceID: instanceID,
		local:      local,
		log:        log,
		queue:      make(chan []byte, republishQueueSize),
	}
}

// Publish delivers n locally and queues it for republishing onto the Redis
// channel. Never blocks; a full queue drops the republish, not the local
// delivery.
func (b *RedisBridge) Publish(n Notification) {
	b.local.Publish(n)

	payload, err := json.Marshal(bridgeEnvelope{InstanceID: b.instanceID, Notification: n})
	if err != nil {
		b.log.Error("bridge marshal failed", "err", err)
		return
	}
	select {
	case b.queue <- payload:
	default:
		b.log.Warn("bridge republish queue full, dropping", "call_id", n.CallID)
	}
}

// Run drains the republish queue to Redis and feeds notifications from other
// instances into the local fanout until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) {
	go b.sendLoop(ctx)

	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			b.handlePayload(msg.Payload)
		}
	}
}

func (b *RedisBridge) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.queue:
			if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
				b.log.Warn("bridge publish failed", "err", err)
			}
		}
	}
}

// handlePayload applies one channel message: own-instance messages are
// skipped (their notifications were already delivered locally by Publish),
// everything else is injected into the local fanout.
func (b *RedisBridge) handlePayload(payload string) {
	var env bridgeEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn("bridge received malformed payload", "err", err)
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}
	b.local.Publish(env.Notification)
}
