package geo

import (
	"fmt"
	"math"
)

// FormatDistance renders a distance for people: "850m" below one kilometer,
// "1.2km" above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

// FormatETA renders an ETA in minutes: "< 1 min", "12 min" or "1h 5m".
func FormatETA(minutes float64) string {
	if minutes < 1 {
		return "< 1 min"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min", int(math.Round(minutes)))
	}
	hours := int(math.Floor(minutes / 60))
	mins := int(math.Round(math.Mod(minutes, 60)))
	return fmt.Sprintf("%dh %dm", hours, mins)
}
