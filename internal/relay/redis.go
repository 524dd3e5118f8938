package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus implements core.Bus over Redis pub/sub. Delivery is at-least-once
// from the subscriber's perspective (go-redis resubscribes after reconnect,
// messages published while disconnected are lost — acceptable because
// presence snapshots are periodically republished).
type RedisBus struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisBus(ctx context.Context, addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("relay: redis ping: %w", err)
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("relay: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a receive goroutine for the topic. The handler runs on
// that goroutine; it must not block on the bus itself.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error {
	ps := b.client.Subscribe(ctx, topic)
	// Force the subscription to be established before returning.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("relay: subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn().Str("module", "relay").Str("topic", topic).Msg("subscription channel closed")
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	for _, ps := range b.subs {
		_ = ps.Close()
	}
	b.subs = nil
	b.mu.Unlock()
	return b.client.Close()
}
