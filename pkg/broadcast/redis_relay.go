package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// publishTimeout bounds a relay publish once it is detached from the caller.
const publishTimeout = 2 * time.Second

// RedisClient is the subset of *redis.Client used by the relay.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisRelay shares events between engine instances through a Redis channel.
// Every instance subscribes to the channel and delivers what it receives to
// its local hub, so an instance sees its own events through Redis as well.
type RedisRelay struct {
	client  RedisClient
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewRedisRelay creates a relay publishing to and consuming from channel.
func NewRedisRelay(client RedisClient, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
	}
}

// Publish sends the event through Redis. If Redis is unavailable the event is
// delivered to local subscribers only and the error is returned for logging.
func (r *RedisRelay) Publish(ctx context.Context, name string, payload any) error {
	event, err := NewEvent(name, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	// The change is already committed; a caller that goes away must not keep
	// the event from other instances.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.client.Publish(pubCtx, r.channel, data).Err(); err != nil {
		r.hub.Deliver(event)
		return fmt.Errorf("failed to relay %s through redis, delivered locally: %w", name, err)
	}
	return nil
}

// Run consumes the Redis channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("Relaying events through Redis", zap.String("channel", r.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("Discarding malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Deliver(event)
		}
	}
}

var _ Publisher = (*RedisRelay)(nil)
