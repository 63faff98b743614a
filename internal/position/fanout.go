package position

import (
	"context"
	"sync"
	"time"
)

// fanout tracks the running watches of one source and remembers the most
// recent fix it delivered.
type fanout struct {
	mu      sync.Mutex
	watches map[*watch]struct{}
	last    *Sample
	lastAt  time.Time
	now     func() time.Time
}

func newFanout() *fanout {
	return &fanout{
		watches: make(map[*watch]struct{}),
		now:     time.Now,
	}
}

// add registers w and reports whether it is the first running watch.
func (f *fanout) add(w *watch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches[w] = struct{}{}
	return len(f.watches) == 1
}

// remove unregisters w and reports whether no watch remains.
func (f *fanout) remove(w *watch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watches[w]; !ok {
		return false
	}
	delete(f.watches, w)
	return len(f.watches) == 0
}

func (f *fanout) snapshot() []*watch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*watch, 0, len(f.watches))
	for w := range f.watches {
		out = append(out, w)
	}
	return out
}

func (f *fanout) publish(s Sample) {
	f.mu.Lock()
	sample := s
	f.last = &sample
	f.lastAt = f.now()
	f.mu.Unlock()

	for _, w := range f.snapshot() {
		w.push(s)
	}
}

func (f *fanout) fail(err error) {
	for _, w := range f.snapshot() {
		w.fail(err)
	}
}

// cached returns the last fix if it was seen within maxAge.
func (f *fanout) cached(maxAge time.Duration) *Sample {
	if maxAge <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil || f.now().Sub(f.lastAt) > maxAge {
		return nil
	}
	s := *f.last
	return &s
}

// requestOnce waits for a single fix from src, using the fanout's cache
// when opts allow it.
func requestOnce(ctx context.Context, src Source, f *fanout, opts Options) PermissionResult {
	if !src.Supported() {
		return PermissionResult{Err: NewError(KindUnsupported, nil)}
	}
	if s := f.cached(opts.MaxCacheAge); s != nil {
		return PermissionResult{Granted: true, Sample: s}
	}

	result := make(chan PermissionResult, 1)
	settle := func(r PermissionResult) {
		select {
		case result <- r:
		default:
		}
	}

	h, err := src.Start(
		func(s Sample) { settle(PermissionResult{Granted: true, Sample: &s}) },
		func(err error) { settle(PermissionResult{Err: err}) },
		opts,
	)
	if err != nil {
		return PermissionResult{Err: err}
	}
	defer h.Stop()

	select {
	case r := <-result:
		return r
	case <-ctx.Done():
		return PermissionResult{Err: NewError(KindTimeout, ctx.Err())}
	}
}
