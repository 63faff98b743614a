package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pathnote/pathnote/internal/proximity"
)

// ExchangeName is the fanout exchange notifications are published to.
const ExchangeName = "pathnote.events"

// Publisher is the part of *amqp.Channel the notifier uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ proximity.Notifier = (*AMQPNotifier)(nil)

// AMQPNotifier publishes notifications as JSON to a RabbitMQ fanout
// exchange, for delivery by push gateways and other consumers.
type AMQPNotifier struct {
	mu sync.Mutex
	ch Publisher
}

// NewAMQPNotifier opens a channel on conn and declares the exchange.
func NewAMQPNotifier(conn *amqp.Connection) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPNotifier{ch: ch}, nil
}

// NewAMQPNotifierWithPublisher creates a notifier on an already prepared
// channel.
func NewAMQPNotifierWithPublisher(ch Publisher) *AMQPNotifier {
	return &AMQPNotifier{ch: ch}
}

// Approaching implements proximity.Notifier.
func (n *AMQPNotifier) Approaching(ctx context.Context, ev proximity.ApproachingEvent) error {
	return n.publish(ctx, ApproachingMessage(ev))
}

// Arrived implements proximity.Notifier.
func (n *AMQPNotifier) Arrived(ctx context.Context, ev proximity.ArrivalEvent) error {
	return n.publish(ctx, ArrivalMessage(ev))
}

func (n *AMQPNotifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.PublishWithContext(ctx, ExchangeName, string(msg.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(msg.Kind),
		Timestamp:    msg.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", msg.Kind, err)
	}
	return nil
}
