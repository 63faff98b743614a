package broker

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/config"
	"github.com/pathnote/pathnote/internal/position"
)

// Source is a position source opened from configuration.
type Source struct {
	position.Source
	// Feed is set when positions are pushed over HTTP.
	Feed *position.FeedSource
	// Check probes the underlying transport. Nil when there is nothing to
	// probe.
	Check func(ctx context.Context) error

	close func()
}

// Close releases the transport.
func (s *Source) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenSource builds the position source named by cfg.PositionSource and
// connects its transport.
func OpenSource(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Source, error) {
	probe := cfg.Tracking.Options()

	switch cfg.PositionSource {
	case config.SourceMQTT:
		var src *position.MQTTSource
		client := NewMQTT(cfg.MQTT, func(c mqtt.Client, err error) {
			src.ConnectionLost(c, err)
		})
		src = position.NewMQTTSource(position.MQTTConfig{
			Client:       client,
			Topic:        cfg.MQTT.Topic,
			QoS:          cfg.MQTT.QoS,
			ProbeOptions: probe,
			Logger:       logger,
		})
		if err := ConnectMQTT(client, DefaultConnectTimeout); err != nil {
			return nil, err
		}
		return &Source{
			Source: src,
			Check:  MQTTCheck(client),
			close:  func() { client.Disconnect(250) },
		}, nil

	case config.SourcePubSub:
		client, subscriber, err := NewPubSub(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		src := position.NewPubSubSource(position.PubSubConfig{
			Subscriber:   subscriber,
			Subscription: cfg.PubSub.Subscription,
			ProbeOptions: probe,
			Logger:       logger,
		})
		return &Source{
			Source: src,
			close: func() {
				if err := client.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close pubsub client")
				}
			},
		}, nil

	case config.SourceFeed:
		feed := position.NewFeedSource(probe)
		return &Source{Source: feed, Feed: feed}, nil

	default:
		return nil, fmt.Errorf("unknown position source %q", cfg.PositionSource)
	}
}
