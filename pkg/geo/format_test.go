package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pathnote/pathnote/pkg/geo"
)

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "0m", geo.FormatDistance(0))
	assert.Equal(t, "850m", geo.FormatDistance(849.6))
	assert.Equal(t, "1.0km", geo.FormatDistance(1000))
	assert.Equal(t, "1.5km", geo.FormatDistance(1500))
	assert.Equal(t, "12.3km", geo.FormatDistance(12_340))
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{0.4, "< 1 min"},
		{1, "1 min"},
		{5.2, "5 min"},
		{45, "45 min"},
		{65, "1h 5m"},
		{150, "2h 30m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, geo.FormatETA(tt.minutes))
		})
	}
}
