package geo_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pathnote/pathnote/pkg/geo"
)

// north returns the coordinate the given number of meters due north of (0,0).
func north(meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: meters / geo.EarthRadiusMeters * 180 / math.Pi}
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		name  string
		coord geo.Coordinate
		want  bool
	}{
		{"origin", geo.Coordinate{}, true},
		{"london", geo.Coordinate{Lat: 51.5074, Lng: -0.1278}, true},
		{"poles and antimeridian", geo.Coordinate{Lat: -90, Lng: 180}, true},
		{"latitude too large", geo.Coordinate{Lat: 90.0001, Lng: 0}, false},
		{"longitude too small", geo.Coordinate{Lat: 0, Lng: -180.5}, false},
		{"nan", geo.Coordinate{Lat: math.NaN(), Lng: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coord.Valid())
		})
	}
}

func TestDistance(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		p := geo.Coordinate{Lat: 52.37, Lng: 4.89}
		assert.Equal(t, 0.0, geo.Distance(p, p).Meters)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := geo.Distance(geo.Coordinate{}, geo.Coordinate{Lat: 1})
		assert.InDelta(t, 111195, d.Meters, 1)
	})

	t.Run("one degree of longitude at the equator", func(t *testing.T) {
		d := geo.Distance(geo.Coordinate{}, geo.Coordinate{Lng: 1})
		assert.InDelta(t, 111195, d.Meters, 1)
	})

	t.Run("symmetric", func(t *testing.T) {
		london := geo.Coordinate{Lat: 51.5074, Lng: -0.1278}
		paris := geo.Coordinate{Lat: 48.8566, Lng: 2.3522}
		ab := geo.Distance(london, paris).Meters
		ba := geo.Distance(paris, london).Meters
		assert.InDelta(t, ab, ba, 1e-6)
		assert.InDelta(t, 343_500, ab, 1_000)
	})
}

func TestSpeed(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("fewer than two samples", func(t *testing.T) {
		assert.Equal(t, 0.0, geo.Speed(nil).MetersPerSecond)
		assert.Equal(t, 0.0, geo.Speed([]geo.Timed{{Coordinate: north(0), At: t0}}).MetersPerSecond)
	})

	t.Run("steady walk", func(t *testing.T) {
		samples := []geo.Timed{
			{Coordinate: north(0), At: t0},
			{Coordinate: north(100), At: t0.Add(10 * time.Second)},
		}
		assert.InDelta(t, 10, geo.Speed(samples).MetersPerSecond, 1e-6)
	})

	t.Run("mean of pair speeds", func(t *testing.T) {
		samples := []geo.Timed{
			{Coordinate: north(0), At: t0},
			{Coordinate: north(20), At: t0.Add(10 * time.Second)},
			{Coordinate: north(80), At: t0.Add(20 * time.Second)},
		}
		// pair speeds 2 and 6
		assert.InDelta(t, 4, geo.Speed(samples).MetersPerSecond, 1e-6)
	})

	t.Run("skips non-positive time deltas", func(t *testing.T) {
		samples := []geo.Timed{
			{Coordinate: north(0), At: t0},
			{Coordinate: north(500), At: t0},
			{Coordinate: north(550), At: t0.Add(10 * time.Second)},
		}
		assert.InDelta(t, 5, geo.Speed(samples).MetersPerSecond, 1e-6)
	})

	t.Run("no valid pair", func(t *testing.T) {
		samples := []geo.Timed{
			{Coordinate: north(0), At: t0},
			{Coordinate: north(10), At: t0},
			{Coordinate: north(20), At: t0.Add(-time.Second)},
		}
		assert.Equal(t, 0.0, geo.Speed(samples).MetersPerSecond)
	})

	t.Run("implausible speed is discarded", func(t *testing.T) {
		samples := []geo.Timed{
			{Coordinate: north(0), At: t0},
			{Coordinate: north(600), At: t0.Add(10 * time.Second)},
		}
		assert.Equal(t, 0.0, geo.Speed(samples).MetersPerSecond)
	})

	t.Run("stationary", func(t *testing.T) {
		samples := []geo.Timed{
			{Coordinate: north(0), At: t0},
			{Coordinate: north(0), At: t0.Add(5 * time.Second)},
		}
		assert.Equal(t, 0.0, geo.Speed(samples).MetersPerSecond)
	})
}

func TestETA(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		speed    float64
		want     float64
	}{
		{"ten minutes", 600, 1, 10},
		{"five minutes", 1500, 5, 5},
		{"zero distance", 0, 5, 0},
		{"zero speed", 1500, 0, 0},
		{"negative speed", 1500, -2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, geo.ETA(tt.distance, tt.speed), 1e-9)
		})
	}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name         string
		distance     float64
		speed        float64
		notifyBefore float64
		want         bool
	}{
		{"exactly at the window", 600, 1, 10, true},
		{"inside the window", 300, 1, 10, true},
		{"just outside the window", 601, 1, 10, false},
		{"at the window with rounded speed", 1500, 4.9999999999999982, 5, true},
		{"beyond the tolerance", 1500.001, 5, 5, false},
		{"not moving", 300, 0, 10, false},
		{"already there", 0, 1, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, geo.ShouldNotify(tt.distance, tt.speed, tt.notifyBefore))
		})
	}
}

func TestHasArrived(t *testing.T) {
	assert.True(t, geo.HasArrived(99, 100))
	assert.True(t, geo.HasArrived(100, 100))
	assert.False(t, geo.HasArrived(100.5, 100))
}
