package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultMQTTTopic is the topic devices publish their fixes to.
const DefaultMQTTTopic = "pathnote/devices/+/position"

var _ Source = (*MQTTSource)(nil)

// MQTTConfig holds configuration for an MQTT source.
type MQTTConfig struct {
	Client           mqtt.Client
	Topic            string
	QoS              byte
	SubscribeTimeout time.Duration
	ProbeOptions     Options
	Logger           zerolog.Logger
}

// MQTTSource receives samples from devices over MQTT. The topic is
// subscribed while at least one watch is running.
type MQTTSource struct {
	cfg MQTTConfig
	fan *fanout

	subMu      sync.Mutex
	subscribed bool
}

// NewMQTTSource creates an MQTT source. A nil client yields an unsupported
// source.
func NewMQTTSource(cfg MQTTConfig) *MQTTSource {
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}
	if cfg.ProbeOptions == (Options{}) {
		cfg.ProbeOptions = DefaultOptions()
	}
	return &MQTTSource{cfg: cfg, fan: newFanout()}
}

// Supported implements Source.
func (s *MQTTSource) Supported() bool {
	return s.cfg.Client != nil
}

// Start implements Source.
func (s *MQTTSource) Start(onSample func(Sample), onError func(error), opts Options) (Handle, error) {
	if !s.Supported() {
		return nil, NewError(KindUnsupported, nil)
	}

	w := newWatch(onSample, onError, opts, s.release)

	s.subMu.Lock()
	s.fan.add(w)
	var err error
	if !s.subscribed {
		err = s.subscribe()
	}
	s.subMu.Unlock()

	if err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}

// RequestPermission implements Source.
func (s *MQTTSource) RequestPermission(ctx context.Context) PermissionResult {
	return requestOnce(ctx, s, s.fan, s.cfg.ProbeOptions)
}

// ConnectionLost reports a broken broker connection to every running watch.
// It matches mqtt.ConnectionLostHandler.
func (s *MQTTSource) ConnectionLost(_ mqtt.Client, err error) {
	s.cfg.Logger.Warn().Err(err).Msg("mqtt connection lost")
	s.fan.fail(NewError(KindPositionUnavailable, err))
}

func (s *MQTTSource) subscribe() error {
	token := s.cfg.Client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	if !token.WaitTimeout(s.cfg.SubscribeTimeout) {
		return NewError(KindPositionUnavailable, errors.New("mqtt subscribe timed out"))
	}
	if err := token.Error(); err != nil {
		return NewError(KindPositionUnavailable, fmt.Errorf("mqtt subscribe %s: %w", s.cfg.Topic, err))
	}
	s.subscribed = true

	s.cfg.Logger.Info().Str("topic", s.cfg.Topic).Msg("subscribed to device positions")
	return nil
}

func (s *MQTTSource) release(w *watch) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if !s.fan.remove(w) || !s.subscribed {
		return
	}
	token := s.cfg.Client.Unsubscribe(s.cfg.Topic)
	if token.WaitTimeout(s.cfg.SubscribeTimeout) && token.Error() != nil {
		s.cfg.Logger.Warn().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("mqtt unsubscribe failed")
	}
	s.subscribed = false
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	m, err := DecodeMessage(msg.Payload())
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping invalid position message")
		return
	}
	s.fan.publish(m.Sample())
}
