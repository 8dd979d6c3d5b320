package stores

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/complyon/abac"
)

const defaultInvalidationChannel = "abac:invalidations"

// RedisInvalidationBus distributes cache invalidation events between engine
// instances over redis pub/sub. Delivery is best-effort: an instance that
// misses an event serves stale candidates until its next local invalidation
// or restart, which matches the process-local cache model.
type RedisInvalidationBus struct {
	client  *redis.Client
	channel string
}

func NewRedisInvalidationBus(client *redis.Client) *RedisInvalidationBus {
	return &RedisInvalidationBus{client: client, channel: defaultInvalidationChannel}
}

// WithChannel overrides the pub/sub channel name.
func (b *RedisInvalidationBus) WithChannel(channel string) *RedisInvalidationBus {
	b.channel = channel
	return b
}

func (b *RedisInvalidationBus) Publish(ctx context.Context, ev abac.InvalidationEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe delivers events to fn on a background goroutine until ctx is
// cancelled or the connection closes. Malformed payloads are skipped.
func (b *RedisInvalidationBus) Subscribe(ctx context.Context, fn func(abac.InvalidationEvent)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev abac.InvalidationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				fn(ev)
			}
		}
	}()
	return nil
}
