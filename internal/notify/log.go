package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/proximity"
)

var _ proximity.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Approaching implements proximity.Notifier.
func (n *LogNotifier) Approaching(_ context.Context, ev proximity.ApproachingEvent) error {
	n.write(ApproachingMessage(ev))
	return nil
}

// Arrived implements proximity.Notifier.
func (n *LogNotifier) Arrived(_ context.Context, ev proximity.ArrivalEvent) error {
	n.write(ArrivalMessage(ev))
	return nil
}

func (n *LogNotifier) write(msg Message) {
	n.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("destination_id", msg.DestinationID).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("notification")
}
