package position

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Source = (*PubSubSource)(nil)

// Receiver is the part of *pubsub.Subscriber the source uses.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// PubSubConfig holds configuration for a Pub/Sub source.
type PubSubConfig struct {
	Subscriber   Receiver
	Subscription string
	ProbeOptions Options
	Logger       zerolog.Logger
}

// PubSubSource receives device samples from a Google Cloud Pub/Sub
// subscription. One Receive loop runs while at least one watch is running.
type PubSubSource struct {
	cfg PubSubConfig
	fan *fanout

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPubSubSource creates a Pub/Sub source. A nil subscriber yields an
// unsupported source.
func NewPubSubSource(cfg PubSubConfig) *PubSubSource {
	if cfg.ProbeOptions == (Options{}) {
		cfg.ProbeOptions = DefaultOptions()
	}
	return &PubSubSource{cfg: cfg, fan: newFanout()}
}

// Supported implements Source.
func (s *PubSubSource) Supported() bool {
	return s.cfg.Subscriber != nil
}

// Start implements Source.
func (s *PubSubSource) Start(onSample func(Sample), onError func(error), opts Options) (Handle, error) {
	if !s.Supported() {
		return nil, NewError(KindUnsupported, nil)
	}

	w := newWatch(onSample, onError, opts, s.release)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fan.add(w)
	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.receive(ctx, s.done)
	}
	return w, nil
}

// RequestPermission implements Source.
func (s *PubSubSource) RequestPermission(ctx context.Context) PermissionResult {
	return requestOnce(ctx, s, s.fan, s.cfg.ProbeOptions)
}

func (s *PubSubSource) receive(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.cfg.Logger.Info().Str("subscription", s.cfg.Subscription).Msg("receiving device positions")

	err := s.cfg.Subscriber.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		m, err := DecodeMessage(msg.Data)
		if err != nil {
			s.cfg.Logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping invalid position message")
			msg.Ack() // redelivery will not fix a malformed payload
			return
		}
		s.fan.publish(m.Sample())
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		s.cfg.Logger.Error().Err(err).Str("subscription", s.cfg.Subscription).Msg("pubsub receive stopped")
		s.fan.fail(classifyReceiveError(err))
	}
}

func (s *PubSubSource) release(w *watch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fan.remove(w) || s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done // a subscriber allows only one Receive at a time
	s.cancel = nil
	s.done = nil
}

func classifyReceiveError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, err)
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return NewError(KindPermissionDenied, err)
	case codes.DeadlineExceeded:
		return NewError(KindTimeout, err)
	default:
		return NewError(KindPositionUnavailable, err)
	}
}
