package proximity_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/pkg/geo"
)

var start = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// at returns a sample the given distance due north of (0,0), captured at
// the given offset from start.
func at(meters float64, offset time.Duration) position.Sample {
	return position.Sample{
		Lat:            meters / geo.EarthRadiusMeters * 180 / math.Pi,
		Lng:            0,
		AccuracyMeters: 5,
		CapturedAt:     start.Add(offset),
	}
}

func home() *proximity.Target {
	return &proximity.Target{
		ID:                  "dst_home",
		Name:                "Home",
		Coordinate:          geo.Coordinate{Lat: 0, Lng: 0},
		RadiusMeters:        100,
		NotifyBeforeMinutes: 5,
	}
}

type fakeNotifier struct {
	mu          sync.Mutex
	approaching []proximity.ApproachingEvent
	arrivals    []proximity.ArrivalEvent
	err         error
}

func (n *fakeNotifier) Approaching(_ context.Context, ev proximity.ApproachingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approaching = append(n.approaching, ev)
	return n.err
}

func (n *fakeNotifier) Arrived(_ context.Context, ev proximity.ArrivalEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.arrivals = append(n.arrivals, ev)
	return n.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	calls    []string
	failures int
	err      error
}

func (r *fakeRecorder) MarkArrived(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	if r.err != nil {
		return r.err
	}
	if r.failures > 0 {
		r.failures--
		return errors.New("store unavailable")
	}
	return nil
}

func (r *fakeRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newMonitor(n proximity.Notifier, r proximity.ArrivalRecorder) *proximity.Monitor {
	return proximity.NewMonitor(proximity.Config{
		Notifier:            n,
		Recorder:            r,
		Logger:              zerolog.Nop(),
		MarkArrivedRetries:  3,
		MarkArrivedInterval: time.Millisecond,
	})
}

func TestMonitor_ApproachThenArrive(t *testing.T) {
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	m := newMonitor(notifier, recorder)
	target := home()
	ctx := context.Background()

	var distances []float64
	for d := 1700.0; d >= 130; d -= 50 {
		distances = append(distances, d)
	}
	distances = append(distances, 80, 60, 40)

	var approachAt, arriveAt float64
	for i, d := range distances {
		r := m.Process(ctx, at(d, time.Duration(i)*10*time.Second), target)

		if d == 1600 {
			assert.InDelta(t, 5, r.SpeedMps, 0.01)
			assert.InDelta(t, 5.33, r.ETAMinutes, 0.01)
			assert.False(t, r.Approaching)
		}
		if r.Approaching {
			approachAt = d
		}
		if r.Arrived {
			arriveAt = d
		}
	}
	m.Wait()

	require.Len(t, notifier.approaching, 1)
	assert.Equal(t, 1500.0, approachAt)
	ev := notifier.approaching[0]
	assert.Equal(t, "dst_home", ev.DestinationID)
	assert.Equal(t, "Home", ev.DestinationName)
	assert.InDelta(t, 5, ev.ETAMinutes, 0.01)
	assert.InDelta(t, 1500, ev.DistanceMeters, 0.01)

	require.Len(t, notifier.arrivals, 1)
	assert.Equal(t, 80.0, arriveAt)
	assert.Equal(t, "Home", notifier.arrivals[0].DestinationName)

	assert.Equal(t, []string{"dst_home"}, recorder.calls)
	assert.Equal(t, proximity.StateIdle, m.Snapshot().State)
}

func TestMonitor_RepeatedEpisodesEmitSameEvents(t *testing.T) {
	tests := []struct {
		name     string
		newEpoch func(m *proximity.Monitor)
	}{
		{"reset", func(m *proximity.Monitor) { m.Reset() }},
		{"destination cleared", func(m *proximity.Monitor) { m.Switch(nil) }},
	}

	var distances []float64
	for d := 1700.0; d >= 130; d -= 50 {
		distances = append(distances, d)
	}
	distances = append(distances, 80, 60, 40)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeNotifier{}
			m := newMonitor(notifier, &fakeRecorder{})
			target := home()

			run := func() {
				for i, d := range distances {
					m.Process(context.Background(), at(d, time.Duration(i)*10*time.Second), target)
				}
			}

			run()
			require.Len(t, notifier.approaching, 1)
			require.Len(t, notifier.arrivals, 1)

			tt.newEpoch(m)
			run()
			m.Wait()

			require.Len(t, notifier.approaching, 2)
			require.Len(t, notifier.arrivals, 2)
			assert.Equal(t, notifier.approaching[0], notifier.approaching[1])
			assert.Equal(t, notifier.arrivals[0], notifier.arrivals[1])
		})
	}
}

func TestMonitor_RearmsAfterMovingAway(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newMonitor(notifier, nil)
	target := home()
	ctx := context.Background()

	var distances []float64
	for d := 1625.0; d >= 1475; d -= 50 {
		distances = append(distances, d)
	}
	for d := 1525.0; d <= 3025; d += 50 {
		distances = append(distances, d)
	}
	for d := 2975.0; d >= 1475; d -= 50 {
		distances = append(distances, d)
	}

	for i, d := range distances {
		m.Process(ctx, at(d, time.Duration(i)*10*time.Second), target)
	}

	require.Len(t, notifier.approaching, 2)
	assert.InDelta(t, 1475, notifier.approaching[0].DistanceMeters, 0.01)
	assert.InDelta(t, 1475, notifier.approaching[1].DistanceMeters, 0.01)
}

func TestMonitor_NoRearmInsideHysteresisBand(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newMonitor(notifier, nil)
	target := home()
	ctx := context.Background()

	// eta oscillates between roughly 4.8 and 9.8 minutes
	var distances []float64
	for d := 1625.0; d >= 1475; d -= 50 {
		distances = append(distances, d)
	}
	for d := 1525.0; d <= 2925; d += 50 {
		distances = append(distances, d)
	}
	for d := 2875.0; d >= 1425; d -= 50 {
		distances = append(distances, d)
	}

	for i, d := range distances {
		m.Process(ctx, at(d, time.Duration(i)*10*time.Second), target)
	}

	assert.Len(t, notifier.approaching, 1)
}

func TestMonitor_NoSpeedNoApproach(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newMonitor(notifier, nil)
	ctx := context.Background()

	t.Run("single sample", func(t *testing.T) {
		r := m.Process(ctx, at(300, 0), home())
		assert.Equal(t, 0.0, r.SpeedMps)
		assert.Equal(t, 0.0, r.ETAMinutes)
	})

	t.Run("stationary", func(t *testing.T) {
		r := m.Process(ctx, at(300, 10*time.Second), home())
		assert.Equal(t, 0.0, r.SpeedMps)
	})

	t.Run("implausible jump", func(t *testing.T) {
		m.Reset()
		m.Process(ctx, at(5000, 0), home())
		r := m.Process(ctx, at(400, 10*time.Second), home())
		assert.Equal(t, 0.0, r.SpeedMps)
	})

	assert.Empty(t, notifier.approaching)
}

func TestMonitor_ArrivalWithoutSpeed(t *testing.T) {
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	m := newMonitor(notifier, recorder)

	r := m.Process(context.Background(), at(50, 0), home())
	assert.True(t, r.Arrived)
	assert.InDelta(t, 50, r.DistanceMeters, 0.01)

	r = m.Process(context.Background(), at(40, 10*time.Second), home())
	assert.False(t, r.Arrived)

	m.Wait()
	assert.Len(t, notifier.arrivals, 1)
	assert.Equal(t, 1, recorder.callCount())
}

func TestMonitor_ArrivalClearsApproachRecord(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newMonitor(notifier, nil)
	ctx := context.Background()
	target := home()

	m.Process(ctx, at(1475, 0), target)
	m.Process(ctx, at(1425, 10*time.Second), target)
	require.Len(t, notifier.approaching, 1)

	m.Process(ctx, at(90, 20*time.Second), target)
	require.Len(t, notifier.arrivals, 1)

	// a fresh episode for the same destination announces again
	m.Switch(nil)
	m.Process(ctx, at(1475, 30*time.Second), target)
	m.Process(ctx, at(1425, 40*time.Second), target)
	assert.Len(t, notifier.approaching, 2)
}

func TestMonitor_DestinationChangeStartsNewEpisode(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newMonitor(notifier, nil)
	ctx := context.Background()

	a := home()
	b := &proximity.Target{ID: "dst_work", Name: "Work", RadiusMeters: 100, NotifyBeforeMinutes: 5}

	m.Process(ctx, at(1475, 0), a)
	m.Process(ctx, at(1425, 10*time.Second), a)
	require.Len(t, notifier.approaching, 1)
	assert.Equal(t, proximity.StateMonitoring, m.Snapshot().State)
	assert.Equal(t, 2, m.Snapshot().Samples)

	r := m.Process(ctx, at(1375, 20*time.Second), b)
	assert.Equal(t, 0.0, r.SpeedMps, "history must not carry over")
	assert.Equal(t, 1, m.Snapshot().Samples)

	r = m.Process(ctx, at(1325, 30*time.Second), b)
	assert.True(t, r.Approaching)
	assert.Equal(t, "dst_work", notifier.approaching[1].DestinationID)

	r = m.Process(ctx, at(1275, 40*time.Second), nil)
	assert.Equal(t, proximity.Reading{}, r)
	snap := m.Snapshot()
	assert.Equal(t, proximity.StateIdle, snap.State)
	assert.Equal(t, 0, snap.Samples)
}

func TestMonitor_MarkArrivedRetries(t *testing.T) {
	t.Run("transient failures", func(t *testing.T) {
		recorder := &fakeRecorder{failures: 2}
		m := newMonitor(nil, recorder)

		m.Process(context.Background(), at(10, 0), home())
		m.Wait()

		assert.Equal(t, 3, recorder.callCount())
	})

	t.Run("gives up after retries", func(t *testing.T) {
		recorder := &fakeRecorder{failures: 100}
		m := newMonitor(nil, recorder)

		m.Process(context.Background(), at(10, 0), home())
		m.Wait()

		assert.Equal(t, 4, recorder.callCount())
	})

	t.Run("permanent failure", func(t *testing.T) {
		recorder := &fakeRecorder{err: backoff.Permanent(errors.New("destination deleted"))}
		m := newMonitor(nil, recorder)

		m.Process(context.Background(), at(10, 0), home())
		m.Wait()

		assert.Equal(t, 1, recorder.callCount())
	})
}

func TestMonitor_NotifierErrorsDoNotStopArrival(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("broker down")}
	recorder := &fakeRecorder{}
	m := newMonitor(notifier, recorder)

	r := m.Process(context.Background(), at(10, 0), home())
	m.Wait()

	assert.True(t, r.Arrived)
	assert.Equal(t, 1, recorder.callCount())
}

func TestMonitor_SnapshotAndReset(t *testing.T) {
	m := newMonitor(nil, nil)
	ctx := context.Background()

	m.Process(ctx, at(1000, 0), home())
	m.Process(ctx, at(950, 10*time.Second), home())

	snap := m.Snapshot()
	assert.Equal(t, proximity.StateMonitoring, snap.State)
	assert.Equal(t, "dst_home", snap.DestinationID)
	assert.InDelta(t, 950, snap.DistanceMeters, 0.01)
	assert.InDelta(t, 5, snap.SpeedMps, 0.01)
	require.NotNil(t, snap.LastSample)
	assert.Len(t, snap.Path, 2)

	m.Reset()
	snap = m.Snapshot()
	assert.Equal(t, proximity.StateIdle, snap.State)
	assert.Nil(t, snap.LastSample)
	assert.Empty(t, snap.Path)
	assert.Equal(t, "idle", snap.State.String())
}
