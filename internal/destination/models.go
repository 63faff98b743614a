// Package destination manages the places a user wants to be alerted about.
package destination

import (
	"errors"
	"time"

	"github.com/pathnote/pathnote/pkg/geo"
)

// Repository errors.
var (
	ErrDestinationNotFound = errors.New("destination not found")
)

// Defaults applied when a create request omits a value.
const (
	DefaultNotifyBeforeMinutes = 1
	DefaultRadiusMeters        = 100
)

// Destination is a saved place. At most one destination is active.
type Destination struct {
	ID                  string
	Name                string
	Address             string
	Lat                 float64
	Lng                 float64
	NotifyBeforeMinutes float64
	RadiusMeters        float64
	IsActive            bool
	ArrivedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Coordinate returns the destination's position.
func (d *Destination) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: d.Lat, Lng: d.Lng}
}

func (d *Destination) clone() *Destination {
	cpy := *d
	if d.ArrivedAt != nil {
		at := *d.ArrivedAt
		cpy.ArrivedAt = &at
	}
	return &cpy
}
