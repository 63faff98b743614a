// Package tracking runs a tracking session: it owns the position source
// subscription and feeds every sample through the proximity monitor.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/destination"
	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/pkg/polyline"
)

// ErrAlreadyTracking is returned by Start while a session is running.
var ErrAlreadyTracking = errors.New("tracking already started")

// DefaultLookupTimeout bounds the active destination lookup per sample.
const DefaultLookupTimeout = 5 * time.Second

// ActiveStore is the part of the destination service the tracker reads.
type ActiveStore interface {
	Active(ctx context.Context) (*destination.Destination, error)
	Subscribe(fn destination.ActiveListener) func()
}

// Config holds configuration for a Tracker.
type Config struct {
	Source       position.Source
	Destinations ActiveStore
	Monitor      *proximity.Monitor
	Logger       zerolog.Logger

	// LookupTimeout bounds the active destination lookup done per sample.
	LookupTimeout time.Duration
}

// Status is a point-in-time view of the tracker.
type Status struct {
	Tracking  bool
	StartedAt *time.Time
	Options   position.Options
	LastError *position.Error
	proximity.Snapshot
	// EncodedPath is the recent path as an encoded polyline.
	EncodedPath string
}

// Tracker owns at most one tracking session at a time.
type Tracker struct {
	source        position.Source
	store         ActiveStore
	monitor       *proximity.Monitor
	logger        zerolog.Logger
	lookupTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// processing is held while a sample is evaluated. Stop takes it so that
	// no sample of the stopped session touches the monitor after Stop returns.
	processing sync.Mutex

	mu          sync.Mutex
	handle      position.Handle
	session     uint64
	startedAt   time.Time
	opts        position.Options
	lastErr     *position.Error
	unsubscribe func()
}

// NewTracker creates an idle tracker and subscribes it to destination
// changes. Call Close to release it.
func NewTracker(cfg Config) *Tracker {
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Monitor == nil {
		cfg.Monitor = proximity.NewMonitor(proximity.Config{Logger: cfg.Logger})
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		source:        cfg.Source,
		store:         cfg.Destinations,
		monitor:       cfg.Monitor,
		logger:        cfg.Logger.With().Str("component", "tracker").Logger(),
		lookupTimeout: cfg.LookupTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}
	t.unsubscribe = cfg.Destinations.Subscribe(t.onActiveChange)
	return t
}

// Start begins a tracking session with opts. History and episode state
// start empty.
func (t *Tracker) Start(ctx context.Context, opts position.Options) error {
	if !t.source.Supported() {
		return position.NewError(position.KindUnsupported, nil)
	}

	active, err := t.store.Active(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle != nil {
		return ErrAlreadyTracking
	}

	t.monitor.Reset()
	t.monitor.Switch(TargetFrom(active))

	t.session++
	session := t.session
	h, err := t.source.Start(
		func(s position.Sample) { t.onSample(session, s) },
		func(err error) { t.onError(session, err) },
		opts,
	)
	if err != nil {
		return err
	}

	t.handle = h
	t.startedAt = time.Now().UTC()
	t.opts = opts
	t.lastErr = nil

	t.logger.Info().
		Bool("high_accuracy", opts.HighAccuracy).
		Dur("timeout", opts.Timeout).
		Dur("max_cache_age", opts.MaxCacheAge).
		Msg("tracking started")
	return nil
}

// Stop ends the running session, if any, and discards history and episode
// state.
func (t *Tracker) Stop() {
	t.processing.Lock()
	defer t.processing.Unlock()

	t.mu.Lock()
	h := t.stopLocked()
	t.mu.Unlock()

	if h != nil {
		h.Stop()
		t.logger.Info().Msg("tracking stopped")
	}
}

func (t *Tracker) stopLocked() position.Handle {
	h := t.handle
	if h == nil {
		return nil
	}
	t.handle = nil
	t.session++
	t.monitor.Reset()
	return h
}

// Status returns the current session state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	st := Status{
		Tracking:  t.handle != nil,
		Options:   t.opts,
		LastError: t.lastErr,
	}
	if st.Tracking {
		at := t.startedAt
		st.StartedAt = &at
	}
	t.mu.Unlock()

	st.Snapshot = t.monitor.Snapshot()
	if len(st.Path) > 0 {
		st.EncodedPath = polyline.Encode(st.Path)
	}
	return st
}

// RequestPermission asks the source for a single fix.
func (t *Tracker) RequestPermission(ctx context.Context) position.PermissionResult {
	return t.source.RequestPermission(ctx)
}

// Close stops tracking and detaches from the destination store.
func (t *Tracker) Close() {
	t.Stop()
	t.cancel()
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

func (t *Tracker) current(session uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != nil && t.session == session
}

func (t *Tracker) onSample(session uint64, s position.Sample) {
	t.processing.Lock()
	defer t.processing.Unlock()

	if !t.current(session) {
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.lookupTimeout)
	defer cancel()

	active, err := t.store.Active(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("active destination lookup failed, sample skipped")
		return
	}

	r := t.monitor.Process(ctx, s, TargetFrom(active))
	t.logger.Debug().
		Str("destination_id", r.DestinationID).
		Float64("distance_meters", r.DistanceMeters).
		Float64("speed_mps", r.SpeedMps).
		Float64("eta_minutes", r.ETAMinutes).
		Msg("sample processed")
}

func (t *Tracker) onError(session uint64, err error) {
	t.mu.Lock()
	if t.handle == nil || t.session != session {
		t.mu.Unlock()
		return
	}

	var perr *position.Error
	if !errors.As(err, &perr) {
		perr = position.NewError(position.KindPositionUnavailable, err)
	}
	t.lastErr = perr
	h := t.stopLocked()
	t.mu.Unlock()

	h.Stop()
	t.logger.Warn().
		Err(err).
		Str("kind", string(perr.Kind)).
		Msg("position source failed, tracking stopped")
}

func (t *Tracker) onActiveChange(_ context.Context, active *destination.Destination) {
	t.mu.Lock()
	running := t.handle != nil
	t.mu.Unlock()

	if running {
		t.monitor.Switch(TargetFrom(active))
	}
}

// TargetFrom converts the active destination into a monitor target. A nil
// destination yields a nil target.
func TargetFrom(d *destination.Destination) *proximity.Target {
	if d == nil {
		return nil
	}
	return &proximity.Target{
		ID:                  d.ID,
		Name:                d.Name,
		Coordinate:          d.Coordinate(),
		RadiusMeters:        d.RadiusMeters,
		NotifyBeforeMinutes: d.NotifyBeforeMinutes,
	}
}

// ArrivalMarker is the store operation behind ArrivalRecorder.
type ArrivalMarker interface {
	MarkArrived(ctx context.Context, id string) error
}

type arrivalRecorder struct {
	store ArrivalMarker
}

// NewArrivalRecorder adapts the destination store to the monitor. A
// destination that no longer exists is not retried.
func NewArrivalRecorder(store ArrivalMarker) proximity.ArrivalRecorder {
	return arrivalRecorder{store: store}
}

func (r arrivalRecorder) MarkArrived(ctx context.Context, id string) error {
	err := r.store.MarkArrived(ctx, id)
	if errors.Is(err, destination.ErrDestinationNotFound) {
		return backoff.Permanent(err)
	}
	return err
}
