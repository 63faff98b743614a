// Package geo provides great-circle distance, travel speed and arrival-time
// estimation over WGS84 coordinates.
//
// Every function here is pure and deterministic. Degenerate inputs never
// produce an error; they collapse to the zero value, which callers treat as
// "unknown".
package geo

import (
	"math"
	"time"
)

const (
	// EarthRadiusMeters is the mean earth radius used by the haversine formula.
	EarthRadiusMeters = 6371008.8

	// MaxPlausibleSpeed is the upper bound, in meters per second, for a speed
	// estimate. Anything faster is treated as GPS noise and reported as 0.
	MaxPlausibleSpeed = 50.0

	// ETATolerance absorbs floating-point error when an ETA is compared with
	// a notify-before window, in minutes.
	ETATolerance = 1e-9
)

// Coordinate is a point on the earth in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Timed is a coordinate observed at a specific instant.
type Timed struct {
	Coordinate Coordinate
	At         time.Time
}

// DistanceResult is a great-circle distance in meters.
type DistanceResult struct {
	Meters float64
}

// SpeedEstimate is a travel speed in meters per second. Zero means unknown.
type SpeedEstimate struct {
	MetersPerSecond float64
}

// Distance returns the haversine distance between two coordinates.
func Distance(from, to Coordinate) DistanceResult {
	lat1 := toRadians(from.Lat)
	lat2 := toRadians(to.Lat)
	dLat := toRadians(to.Lat - from.Lat)
	dLng := toRadians(to.Lng - from.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return DistanceResult{Meters: EarthRadiusMeters * c}
}

// Speed estimates the current speed from samples ordered oldest first.
//
// The estimate is the arithmetic mean of the per-pair speeds of consecutive
// samples. Pairs whose time delta is not positive are skipped. Fewer than two
// samples, no usable pair, or a mean above MaxPlausibleSpeed all yield 0.
func Speed(samples []Timed) SpeedEstimate {
	if len(samples) < 2 {
		return SpeedEstimate{}
	}

	var total float64
	var pairs int
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dt := cur.At.Sub(prev.At).Seconds()
		if dt <= 0 {
			continue
		}
		total += Distance(prev.Coordinate, cur.Coordinate).Meters / dt
		pairs++
	}
	if pairs == 0 {
		return SpeedEstimate{}
	}

	mean := total / float64(pairs)
	if mean > MaxPlausibleSpeed {
		return SpeedEstimate{}
	}
	return SpeedEstimate{MetersPerSecond: mean}
}

// ETA returns the estimated minutes to cover distanceMeters at speedMps.
// It returns 0 when either input is zero or negative.
func ETA(distanceMeters, speedMps float64) float64 {
	if distanceMeters <= 0 || speedMps <= 0 {
		return 0
	}
	return distanceMeters / speedMps / 60
}

// ShouldNotify reports whether an approaching notification is due: the
// device is moving, not at the target, and expected within notifyBeforeMinutes.
func ShouldNotify(distanceMeters, speedMps, notifyBeforeMinutes float64) bool {
	if speedMps <= 0 || distanceMeters <= 0 {
		return false
	}
	eta := ETA(distanceMeters, speedMps)
	return eta > 0 && eta <= notifyBeforeMinutes+ETATolerance
}

// HasArrived reports whether distanceMeters lies within the arrival radius.
func HasArrived(distanceMeters, radiusMeters float64) bool {
	return distanceMeters <= radiusMeters
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
