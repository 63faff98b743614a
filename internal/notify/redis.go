package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/proximity"
)

// RedisPublisher is the part of *redis.Client the notifier uses.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

var _ proximity.Notifier = (*RedisNotifier)(nil)

// RedisNotifier publishes notifications as JSON on a Redis pub/sub channel,
// so other API replicas can relay them to their own websocket clients.
type RedisNotifier struct {
	client  RedisPublisher
	channel string
}

// NewRedisNotifier creates a notifier publishing on channel.
func NewRedisNotifier(client RedisPublisher, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Approaching implements proximity.Notifier.
func (n *RedisNotifier) Approaching(ctx context.Context, ev proximity.ApproachingEvent) error {
	return n.publish(ctx, ApproachingMessage(ev))
}

// Arrived implements proximity.Notifier.
func (n *RedisNotifier) Arrived(ctx context.Context, ev proximity.ArrivalEvent) error {
	return n.publish(ctx, ArrivalMessage(ev))
}

func (n *RedisNotifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s notification: %w", msg.Kind, err)
	}
	return nil
}

// Relay forwards messages received on a Redis subscription to the hub until
// ctx is done or messages is closed. Undecodable payloads are skipped.
func Relay(ctx context.Context, messages <-chan *redis.Message, hub *Hub, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}

			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn().Err(err).Str("channel", m.Channel).Msg("skipping undecodable notification")
				continue
			}
			if err := hub.Broadcast(msg); err != nil {
				logger.Error().Err(err).Msg("failed to relay notification")
			}
		}
	}
}
