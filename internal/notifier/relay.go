package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"go-screening-backend/internal/domain"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRelayTopic = "screening:events"

// RedisRelay carries sequenced events between instances over Redis pub/sub.
// Every instance, including the publisher, delivers what it receives.
type RedisRelay struct {
	client *goredis.Client
	topic  string
	hub    *Hub
	log    *zap.Logger
	pubsub *goredis.PubSub
}

func NewRedisRelay(client *goredis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{client: client, topic: defaultRelayTopic, hub: hub, log: log}
}

func (r *RedisRelay) Forward(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("relay marshal: %w", err)
	}
	return r.client.Publish(ctx, r.topic, payload).Err()
}

// Start subscribes to the topic and attaches the relay to the hub once the
// subscription is confirmed.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.pubsub = r.client.Subscribe(ctx, r.topic)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.hub.UseRelay(r)

	go func() {
		for msg := range r.pubsub.Channel() {
			var ev domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Deliver(ev)
		}
	}()
	return nil
}

func (r *RedisRelay) Close() error {
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Close()
}
