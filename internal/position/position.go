// Package position delivers device location samples from a transport to a
// consumer.
//
// A Source is started with a pair of callbacks and returns a Handle. Samples
// and errors are delivered serially on one dispatch goroutine per handle, in
// the order the transport hands them over. Stopping a handle is idempotent,
// safe from inside a callback, and guarantees that no new callback starts
// once Stop has returned.
package position

import (
	"context"
	"time"

	"github.com/pathnote/pathnote/pkg/geo"
)

// CoarseAccuracyMeters is the accuracy beyond which a fix is considered
// cell or IP level. High accuracy watches discard such fixes.
const CoarseAccuracyMeters = 1000.0

// Sample is one location fix reported by a device.
type Sample struct {
	Lat            float64
	Lng            float64
	AccuracyMeters float64
	CapturedAt     time.Time
}

// Coordinate returns the sample's position.
func (s Sample) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// Timed returns the sample as a timestamped coordinate for speed estimation.
func (s Sample) Timed() geo.Timed {
	return geo.Timed{Coordinate: s.Coordinate(), At: s.CapturedAt}
}

// Options configure a watch.
type Options struct {
	// HighAccuracy discards fixes coarser than CoarseAccuracyMeters.
	HighAccuracy bool
	// Timeout is the longest wait for a sample before onError receives a
	// timeout error. Zero disables the timer.
	Timeout time.Duration
	// MaxCacheAge is how old a remembered fix may be when answering
	// RequestPermission. Zero always waits for a fresh fix.
	MaxCacheAge time.Duration
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaxCacheAge:  0,
	}
}

// Handle stops a running watch.
type Handle interface {
	Stop()
}

// PermissionResult is the outcome of a permission probe.
type PermissionResult struct {
	Granted bool
	Sample  *Sample
	Err     error
}

// Source produces location samples.
type Source interface {
	// Start begins watching. It returns an *Error of KindUnsupported when the
	// source has no transport, without invoking onError.
	Start(onSample func(Sample), onError func(error), opts Options) (Handle, error)
	// Supported reports whether the source can produce samples at all.
	Supported() bool
	// RequestPermission attempts a single fix.
	RequestPermission(ctx context.Context) PermissionResult
}
