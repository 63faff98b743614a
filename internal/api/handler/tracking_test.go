package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathnote/pathnote/internal/api/models"
	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/internal/tracking"
)

func TestLocationErrorStatus(t *testing.T) {
	tests := []struct {
		kind position.Kind
		want int
	}{
		{position.KindPermissionDenied, http.StatusForbidden},
		{position.KindPositionUnavailable, http.StatusServiceUnavailable},
		{position.KindTimeout, http.StatusGatewayTimeout},
		{position.KindUnsupported, http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, locationErrorStatus(tt.kind))
		})
	}
}

func TestOptionsFrom(t *testing.T) {
	off := false
	timeout := 2500
	maxAge := 0

	assert.Equal(t, position.DefaultOptions(), optionsFrom(&models.TrackingStartRequest{}))
	assert.Equal(t, position.Options{
		HighAccuracy: false,
		Timeout:      2500 * time.Millisecond,
		MaxCacheAge:  0,
	}, optionsFrom(&models.TrackingStartRequest{HighAccuracy: &off, TimeoutMs: &timeout, MaximumAgeMs: &maxAge}))
}

func TestToTrackingStatus(t *testing.T) {
	captured := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	started := captured.Add(-time.Minute)

	t.Run("idle", func(t *testing.T) {
		out := toTrackingStatus(tracking.Status{})
		assert.False(t, out.Tracking)
		assert.Equal(t, "idle", out.State)
		assert.Nil(t, out.ActiveDestinationID)
		assert.Nil(t, out.DistanceMeters)
		assert.Nil(t, out.LastPosition)
	})

	t.Run("monitoring while stationary", func(t *testing.T) {
		sample := position.Sample{Lat: 1, Lng: 2, AccuracyMeters: 5, CapturedAt: captured}
		out := toTrackingStatus(tracking.Status{
			Tracking:  true,
			StartedAt: &started,
			Snapshot: proximity.Snapshot{
				State:      proximity.StateMonitoring,
				LastSample: &sample,
				Samples:    1,
				Reading:    proximity.Reading{DestinationID: "dst_1", DistanceMeters: 1500},
			},
		})

		require.NotNil(t, out.ActiveDestinationID)
		assert.Equal(t, "dst_1", *out.ActiveDestinationID)
		assert.Equal(t, "1.5km", out.Distance)
		assert.Nil(t, out.ETAMinutes)
		assert.Empty(t, out.ETA)
		require.NotNil(t, out.LastPosition)
		assert.Equal(t, captured.UnixMilli(), out.LastPosition.CapturedAtMs)
		require.NotNil(t, out.StartedAt)
	})

	t.Run("monitoring while moving", func(t *testing.T) {
		sample := position.Sample{CapturedAt: captured}
		out := toTrackingStatus(tracking.Status{
			Tracking: true,
			Snapshot: proximity.Snapshot{
				State:      proximity.StateMonitoring,
				LastSample: &sample,
				Reading:    proximity.Reading{DestinationID: "dst_1", DistanceMeters: 1800, SpeedMps: 10, ETAMinutes: 3},
			},
		})

		require.NotNil(t, out.ETAMinutes)
		assert.InDelta(t, 3, *out.ETAMinutes, 1e-9)
		assert.Equal(t, "3 min", out.ETA)
	})

	t.Run("last error", func(t *testing.T) {
		out := toTrackingStatus(tracking.Status{LastError: position.NewError(position.KindTimeout, nil)})
		require.NotNil(t, out.LastError)
		assert.Equal(t, "TIMEOUT", out.LastError.Kind)
		assert.NotEmpty(t, out.LastError.Message)
	})
}

func TestToPositionError_Untyped(t *testing.T) {
	out := toPositionError(errors.New("gps off"))
	assert.Equal(t, "POSITION_UNAVAILABLE", out.Kind)
}
