// Package polyline encodes coordinate paths using Google's polyline algorithm
// at 5 decimal places of precision.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"math"

	"github.com/pathnote/pathnote/pkg/geo"
)

const precision = 1e5

// Encode encodes a path of coordinates into a polyline string.
func Encode(path []geo.Coordinate) string {
	if len(path) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(path)*6)
	prevLat, prevLng := 0, 0

	for _, c := range path {
		lat := int(math.Round(c.Lat * precision))
		lng := int(math.Round(c.Lng * precision))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return string(buf)
}

// Decode decodes a polyline string. Truncated input yields the coordinates
// decoded before the truncation point.
func Decode(encoded string) []geo.Coordinate {
	if encoded == "" {
		return nil
	}

	var path []geo.Coordinate
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		dLat, next := readValue(encoded, index)
		if next >= len(encoded) {
			break
		}
		dLng, next := readValue(encoded, next)
		index = next

		lat += dLat
		lng += dLng
		path = append(path, geo.Coordinate{
			Lat: float64(lat) / precision,
			Lng: float64(lng) / precision,
		})
	}

	return path
}

// Length returns the total haversine length of a path in meters.
func Length(path []geo.Coordinate) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += geo.Distance(path[i-1], path[i]).Meters
	}
	return total
}

func readValue(encoded string, index int) (int, int) {
	shift, result := 0, 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	// zig-zag
	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

func appendValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
