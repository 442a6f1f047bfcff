package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"jurix.app/internal/ids"
	"jurix.app/internal/obs"
	"jurix.app/internal/session"
)

// revocationChannel is the pub/sub channel shared by every edge instance.
const revocationChannel = "jurix:session:revocations"

type envelope struct {
	Origin string             `json:"origin"`
	Event  session.Revocation `json:"event"`
}

// RedisBridge connects a local Broker to its peers through Redis pub/sub so a
// revocation issued on one instance reaches clients connected to another.
// When Redis is unreachable the bridge degrades to local-only delivery; the
// poll loop still converges every instance within one interval.
type RedisBridge struct {
	client *redis.Client
	broker *Broker
	origin string
}

// NewRedisBridge constructs a bridge over an existing Redis client.
func NewRedisBridge(client *redis.Client, broker *Broker) (*RedisBridge, error) {
	if client == nil || broker == nil {
		return nil, fmt.Errorf("stream: redis client and broker are required")
	}
	return &RedisBridge{
		client: client,
		broker: broker,
		origin: ids.New(),
	}, nil
}

// Publish delivers the event locally and forwards it to peers. The Redis leg
// is best effort.
func (rb *RedisBridge) Publish(ctx context.Context, evt session.Revocation) {
	rb.broker.Publish(evt)
	payload, err := json.Marshal(envelope{Origin: rb.origin, Event: evt})
	if err != nil {
		return
	}
	if err := rb.client.Publish(ctx, revocationChannel, payload).Err(); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "revocation fan-out degraded to local",
			"error": err.Error(),
		})
		return
	}
	obs.RevocationPublished("redis")
}

// Run consumes peer events until the context ends. Events originated by this
// instance were already delivered locally and are skipped.
func (rb *RedisBridge) Run(ctx context.Context) error {
	sub := rb.client.Subscribe(ctx, revocationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Origin == rb.origin {
				continue
			}
			rb.broker.Publish(env.Event)
		}
	}
}
