// Package proximity turns a stream of location samples into approaching and
// arrival events for the active destination.
package proximity

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/pkg/geo"
)

// RearmFactor controls notification hysteresis. Once the ETA grows beyond
// RearmFactor times the notify-before window, a destination may be announced
// again.
// TODO: confirm the factor with product once field data on GPS jitter is in.
const RearmFactor = 2.0

// State is the monitor's lifecycle state.
type State int

const (
	// StateIdle means there is no destination to watch, or it was reached.
	StateIdle State = iota
	// StateMonitoring means samples are evaluated against a destination.
	StateMonitoring
)

func (s State) String() string {
	if s == StateMonitoring {
		return "monitoring"
	}
	return "idle"
}

// Target is the destination a sample is evaluated against.
type Target struct {
	ID                  string
	Name                string
	Coordinate          geo.Coordinate
	RadiusMeters        float64
	NotifyBeforeMinutes float64
}

// ApproachingEvent is emitted once per episode when the ETA enters the
// notify-before window.
type ApproachingEvent struct {
	DestinationID   string
	DestinationName string
	ETAMinutes      float64
	DistanceMeters  float64
	At              time.Time
}

// ArrivalEvent is emitted once per episode when the device enters the
// arrival radius.
type ArrivalEvent struct {
	DestinationID   string
	DestinationName string
	At              time.Time
}

// Notifier delivers monitor events to people.
type Notifier interface {
	Approaching(ctx context.Context, ev ApproachingEvent) error
	Arrived(ctx context.Context, ev ArrivalEvent) error
}

// ArrivalRecorder persists arrivals. Returning a *backoff.PermanentError
// stops further attempts.
type ArrivalRecorder interface {
	MarkArrived(ctx context.Context, destinationID string) error
}

// Reading is the outcome of evaluating one sample.
type Reading struct {
	DestinationID  string
	DistanceMeters float64
	SpeedMps       float64
	ETAMinutes     float64
	// Approaching and Arrived report the events emitted for this sample.
	Approaching bool
	Arrived     bool
}

// Snapshot is a point-in-time view of the monitor.
type Snapshot struct {
	State      State
	LastSample *position.Sample
	Samples    int
	Path       []geo.Coordinate
	Reading
}

// Config holds configuration for a Monitor.
type Config struct {
	Notifier Notifier
	Recorder ArrivalRecorder
	Metrics  *Metrics
	Logger   zerolog.Logger

	// MarkArrivedRetries bounds the retries of a failed mark-arrived command.
	MarkArrivedRetries uint64
	// MarkArrivedTimeout bounds the whole mark-arrived dispatch.
	MarkArrivedTimeout time.Duration
	// MarkArrivedInterval is the initial backoff interval.
	MarkArrivedInterval time.Duration
}

// DefaultConfig returns a monitor configuration with default retry settings.
func DefaultConfig() Config {
	return Config{
		Logger:              zerolog.Nop(),
		MarkArrivedRetries:  5,
		MarkArrivedTimeout:  30 * time.Second,
		MarkArrivedInterval: 500 * time.Millisecond,
	}
}

// Monitor evaluates samples against the active destination. It owns the
// location history and the per-episode notification memory.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	history    History
	targetID   string
	notified   map[string]struct{}
	arrived    map[string]struct{}
	last       Reading
	lastSample *position.Sample

	inflight sync.WaitGroup
}

// NewMonitor creates an idle monitor.
func NewMonitor(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.MarkArrivedRetries == 0 {
		cfg.MarkArrivedRetries = def.MarkArrivedRetries
	}
	if cfg.MarkArrivedTimeout == 0 {
		cfg.MarkArrivedTimeout = def.MarkArrivedTimeout
	}
	if cfg.MarkArrivedInterval == 0 {
		cfg.MarkArrivedInterval = def.MarkArrivedInterval
	}
	return &Monitor{
		cfg:      cfg,
		notified: make(map[string]struct{}),
		arrived:  make(map[string]struct{}),
	}
}

// Process evaluates one sample against target, the currently active
// destination or nil when there is none.
func (m *Monitor) Process(ctx context.Context, s position.Sample, target *Target) Reading {
	m.mu.Lock()
	m.switchLocked(target)
	if target == nil {
		m.mu.Unlock()
		return Reading{}
	}

	r, approaching, arrival := m.evaluateLocked(s, *target)
	m.last = r
	m.mu.Unlock()

	m.cfg.Metrics.sampleProcessed(ctx)
	if r.ETAMinutes > 0 {
		m.cfg.Metrics.etaObserved(ctx, r.ETAMinutes)
	}

	if arrival != nil {
		m.emitArrival(ctx, *arrival)
	}
	if approaching != nil {
		m.emitApproaching(ctx, *approaching)
	}
	return r
}

func (m *Monitor) evaluateLocked(s position.Sample, t Target) (Reading, *ApproachingEvent, *ArrivalEvent) {
	sample := s
	m.history.Push(s)
	m.lastSample = &sample

	dist := geo.Distance(s.Coordinate(), t.Coordinate).Meters
	r := Reading{DestinationID: t.ID, DistanceMeters: dist}

	if geo.HasArrived(dist, t.RadiusMeters) {
		if _, done := m.arrived[t.ID]; done {
			return r, nil, nil
		}
		m.arrived[t.ID] = struct{}{}
		delete(m.notified, t.ID)
		r.Arrived = true
		return r, nil, &ArrivalEvent{DestinationID: t.ID, DestinationName: t.Name, At: s.CapturedAt}
	}

	speed := geo.Speed(m.history.Timed()).MetersPerSecond
	r.SpeedMps = speed
	if speed == 0 {
		return r, nil, nil
	}

	eta := geo.ETA(dist, speed)
	r.ETAMinutes = eta

	if geo.ShouldNotify(dist, speed, t.NotifyBeforeMinutes) {
		if _, done := m.notified[t.ID]; done {
			return r, nil, nil
		}
		m.notified[t.ID] = struct{}{}
		r.Approaching = true
		return r, &ApproachingEvent{
			DestinationID:   t.ID,
			DestinationName: t.Name,
			ETAMinutes:      eta,
			DistanceMeters:  dist,
			At:              s.CapturedAt,
		}, nil
	}

	if eta > RearmFactor*t.NotifyBeforeMinutes {
		delete(m.notified, t.ID)
	}
	return r, nil, nil
}

// Switch reacts to a change of the active destination outside the sample
// flow. A different destination, or none, starts a new episode.
func (m *Monitor) Switch(target *Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchLocked(target)
}

func (m *Monitor) switchLocked(target *Target) {
	id := ""
	if target != nil {
		id = target.ID
	}
	if id == m.targetID {
		return
	}

	m.cfg.Logger.Debug().
		Str("from", m.targetID).
		Str("to", id).
		Msg("active destination changed")

	m.history.Reset()
	clear(m.notified)
	clear(m.arrived)
	m.targetID = id
	m.last = Reading{}
}

// Reset discards all state, as on a tracking restart.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history.Reset()
	clear(m.notified)
	clear(m.arrived)
	m.targetID = ""
	m.last = Reading{}
	m.lastSample = nil
}

// Snapshot returns the monitor's current view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:   m.stateLocked(),
		Samples: m.history.Len(),
		Path:    m.history.Path(),
		Reading: m.last,
	}
	if m.lastSample != nil {
		s := *m.lastSample
		snap.LastSample = &s
	}
	return snap
}

func (m *Monitor) stateLocked() State {
	if m.targetID == "" {
		return StateIdle
	}
	if _, done := m.arrived[m.targetID]; done {
		return StateIdle
	}
	return StateMonitoring
}

// Wait blocks until every dispatched mark-arrived command has finished.
func (m *Monitor) Wait() {
	m.inflight.Wait()
}

func (m *Monitor) emitApproaching(ctx context.Context, ev ApproachingEvent) {
	m.cfg.Metrics.approachingEmitted(ctx)
	m.cfg.Logger.Info().
		Str("destination_id", ev.DestinationID).
		Float64("eta_minutes", ev.ETAMinutes).
		Float64("distance_meters", ev.DistanceMeters).
		Msg("approaching destination")

	if m.cfg.Notifier == nil {
		return
	}
	if err := m.cfg.Notifier.Approaching(ctx, ev); err != nil {
		m.cfg.Logger.Error().Err(err).Str("destination_id", ev.DestinationID).Msg("approaching notification failed")
	}
}

func (m *Monitor) emitArrival(ctx context.Context, ev ArrivalEvent) {
	m.cfg.Metrics.arrivalEmitted(ctx)
	m.cfg.Logger.Info().
		Str("destination_id", ev.DestinationID).
		Msg("arrived at destination")

	if m.cfg.Notifier != nil {
		if err := m.cfg.Notifier.Arrived(ctx, ev); err != nil {
			m.cfg.Logger.Error().Err(err).Str("destination_id", ev.DestinationID).Msg("arrival notification failed")
		}
	}

	if m.cfg.Recorder != nil {
		m.dispatchMarkArrived(ctx, ev.DestinationID)
	}
}

// dispatchMarkArrived records the arrival in the background with bounded
// retries.
func (m *Monitor) dispatchMarkArrived(ctx context.Context, id string) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.MarkArrivedTimeout)
		defer cancel()

		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = m.cfg.MarkArrivedInterval
		b := backoff.WithContext(backoff.WithMaxRetries(eb, m.cfg.MarkArrivedRetries), ctx)

		attempt := 0
		err := backoff.Retry(func() error {
			attempt++
			return m.cfg.Recorder.MarkArrived(ctx, id)
		}, b)
		if err != nil {
			m.cfg.Metrics.markArrivedFailed(ctx)
			m.cfg.Logger.Error().
				Err(err).
				Str("destination_id", id).
				Int("attempts", attempt).
				Msg("failed to mark destination arrived")
			return
		}

		m.cfg.Logger.Debug().Str("destination_id", id).Int("attempts", attempt).Msg("destination marked arrived")
	}()
}
