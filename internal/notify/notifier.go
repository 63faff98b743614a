// Package notify delivers approaching and arrival events to people and to
// downstream systems.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/pkg/geo"
)

// Kind identifies the event a message describes.
type Kind string

const (
	KindApproaching Kind = "approaching"
	KindArrived     Kind = "arrived"
)

// Message is the rendered form of a monitor event, shared by every channel.
type Message struct {
	Kind            Kind      `json:"kind"`
	DestinationID   string    `json:"destinationId"`
	DestinationName string    `json:"destinationName"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	ETAMinutes      float64   `json:"etaMinutes,omitempty"`
	DistanceMeters  float64   `json:"distanceMeters,omitempty"`
	At              time.Time `json:"at"`
}

// ApproachingMessage renders an approaching event.
func ApproachingMessage(ev proximity.ApproachingEvent) Message {
	return Message{
		Kind:            KindApproaching,
		DestinationID:   ev.DestinationID,
		DestinationName: ev.DestinationName,
		Title:           fmt.Sprintf("Approaching %s", ev.DestinationName),
		Body:            fmt.Sprintf("You'll arrive in %s (%s)", geo.FormatETA(ev.ETAMinutes), geo.FormatDistance(ev.DistanceMeters)),
		ETAMinutes:      ev.ETAMinutes,
		DistanceMeters:  ev.DistanceMeters,
		At:              ev.At,
	}
}

// ArrivalMessage renders an arrival event.
func ArrivalMessage(ev proximity.ArrivalEvent) Message {
	return Message{
		Kind:            KindArrived,
		DestinationID:   ev.DestinationID,
		DestinationName: ev.DestinationName,
		Title:           fmt.Sprintf("Arrived at %s", ev.DestinationName),
		Body:            fmt.Sprintf("You have arrived at %s", ev.DestinationName),
		At:              ev.At,
	}
}

// Multi fans events out to several notifiers. Every notifier is called;
// their errors are joined.
type Multi []proximity.Notifier

var _ proximity.Notifier = Multi(nil)

// Approaching implements proximity.Notifier.
func (m Multi) Approaching(ctx context.Context, ev proximity.ApproachingEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Approaching(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Arrived implements proximity.Notifier.
func (m Multi) Arrived(ctx context.Context, ev proximity.ArrivalEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Arrived(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
