package position

import (
	"sync"
	"time"
)

const watchBuffer = 64

// watch is the dispatch side of a Handle. Transports push samples and errors
// into it; a single goroutine invokes the caller's callbacks.
type watch struct {
	onSample func(Sample)
	onError  func(error)
	opts     Options

	samples chan Sample
	errs    chan error
	quit    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
	active  bool // a callback is running

	stopOnce sync.Once
	release  func(*watch)
}

func newWatch(onSample func(Sample), onError func(error), opts Options, release func(*watch)) *watch {
	if onSample == nil {
		onSample = func(Sample) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	w := &watch{
		onSample: onSample,
		onError:  onError,
		opts:     opts,
		samples:  make(chan Sample, watchBuffer),
		errs:     make(chan error, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		release:  release,
	}
	go w.run()
	return w
}

func (w *watch) run() {
	defer close(w.done)

	var timer *time.Timer
	var timeout <-chan time.Time
	if w.opts.Timeout > 0 {
		timer = time.NewTimer(w.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	rearm := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.opts.Timeout)
	}

	for {
		select {
		case <-w.quit:
			return
		case s := <-w.samples:
			if w.opts.HighAccuracy && s.AccuracyMeters > CoarseAccuracyMeters {
				continue
			}
			rearm()
			if !w.invoke(func() { w.onSample(s) }) {
				return
			}
		case err := <-w.errs:
			if !w.invoke(func() { w.onError(err) }) {
				return
			}
		case <-timeout:
			timer.Reset(w.opts.Timeout)
			if !w.invoke(func() { w.onError(NewError(KindTimeout, nil)) }) {
				return
			}
		}
	}
}

// invoke runs fn unless the watch has been stopped.
func (w *watch) invoke(fn func()) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.active = true
	w.mu.Unlock()

	fn()

	w.mu.Lock()
	w.active = false
	w.mu.Unlock()
	return true
}

// push hands a sample to the dispatcher. It blocks while the buffer is full
// and gives up once the watch stops.
func (w *watch) push(s Sample) {
	select {
	case w.samples <- s:
	case <-w.quit:
	}
}

// fail hands an error to the dispatcher. Only the first pending error is kept.
func (w *watch) fail(err error) {
	select {
	case w.errs <- err:
	case <-w.quit:
	default:
	}
}

// Stop implements Handle.
func (w *watch) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		inCallback := w.active
		w.mu.Unlock()

		close(w.quit)
		if w.release != nil {
			w.release(w)
		}
		// The running callback may be the caller; waiting would deadlock.
		if !inCallback {
			<-w.done
		}
	})
}
