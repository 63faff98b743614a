package position

import "context"

var _ Source = (*FeedSource)(nil)

// FeedSource is an in-process source. Samples arrive through Publish, which
// the HTTP ingestion endpoint and tests call directly.
type FeedSource struct {
	fan   *fanout
	probe Options
}

// NewFeedSource creates an empty feed. probe configures RequestPermission.
func NewFeedSource(probe Options) *FeedSource {
	return &FeedSource{fan: newFanout(), probe: probe}
}

// Publish delivers a sample to every running watch.
func (f *FeedSource) Publish(s Sample) {
	f.fan.publish(s)
}

// Fail delivers an error to every running watch, for example when the
// device reports that location access was revoked.
func (f *FeedSource) Fail(err error) {
	f.fan.fail(err)
}

// Watching reports the number of running watches.
func (f *FeedSource) Watching() int {
	return len(f.fan.snapshot())
}

// Start implements Source.
func (f *FeedSource) Start(onSample func(Sample), onError func(error), opts Options) (Handle, error) {
	w := newWatch(onSample, onError, opts, func(w *watch) { f.fan.remove(w) })
	f.fan.add(w)
	return w, nil
}

// Supported implements Source. A feed is always available.
func (f *FeedSource) Supported() bool {
	return true
}

// RequestPermission implements Source.
func (f *FeedSource) RequestPermission(ctx context.Context) PermissionResult {
	return requestOnce(ctx, f, f.fan, f.probe)
}
