// Package broker connects to the message brokers pathnote exchanges
// positions and notifications over.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/pathnote/pathnote/internal/config"
)

// DefaultConnectTimeout bounds the initial MQTT connection.
const DefaultConnectTimeout = 15 * time.Second

// Health check errors.
var (
	ErrMQTTDisconnected = errors.New("mqtt not connected")
	ErrAMQPClosed       = errors.New("rabbitmq connection closed")
)

// NewMQTT creates an MQTT client without connecting it, so the caller can
// wire onLost to a source built on the client before calling ConnectMQTT.
func NewMQTT(cfg config.MQTTConfig, onLost mqtt.ConnectionLostHandler) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(DefaultConnectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if onLost != nil {
		opts.SetConnectionLostHandler(onLost)
	}
	return mqtt.NewClient(opts)
}

// ConnectMQTT connects client, waiting at most timeout.
func ConnectMQTT(client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("mqtt connect: timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// NewRabbitMQ dials the AMQP broker.
func NewRabbitMQ(cfg config.AMQPConfig) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	return conn, nil
}

// NewRedis creates a Redis client. The client connects lazily.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

// NewPubSub creates a Pub/Sub client and a subscriber for the configured
// subscription. Close the client when done.
func NewPubSub(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Client, *pubsub.Subscriber, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	if cfg.MaxOutstandingMessages > 0 {
		subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	// Positions go stale quickly; do not hold them for long.
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return client, subscriber, nil
}

// Connected is implemented by mqtt.Client.
type Connected interface {
	IsConnected() bool
}

// Closer is implemented by *amqp.Connection.
type Closer interface {
	IsClosed() bool
}

// Pinger is implemented by *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// MQTTCheck returns a readiness probe for an MQTT client.
func MQTTCheck(c Connected) func(ctx context.Context) error {
	return func(context.Context) error {
		if !c.IsConnected() {
			return ErrMQTTDisconnected
		}
		return nil
	}
}

// AMQPCheck returns a readiness probe for an AMQP connection.
func AMQPCheck(c Closer) func(ctx context.Context) error {
	return func(context.Context) error {
		if c.IsClosed() {
			return ErrAMQPClosed
		}
		return nil
	}
}

// RedisCheck returns a readiness probe for a Redis client.
func RedisCheck(p Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}
