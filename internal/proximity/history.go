package proximity

import (
	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/pkg/geo"
)

// HistoryCapacity is the number of recent samples kept for speed estimation.
const HistoryCapacity = 10

// History is a bounded, insertion-ordered buffer of recent samples. Once
// full, each push evicts the oldest sample. It is not safe for concurrent
// use; the Monitor guards it.
type History struct {
	buf   [HistoryCapacity]position.Sample
	start int
	n     int
}

// Push appends a sample, evicting the oldest when full.
func (h *History) Push(s position.Sample) {
	if h.n < HistoryCapacity {
		h.buf[(h.start+h.n)%HistoryCapacity] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % HistoryCapacity
}

// Reset empties the buffer.
func (h *History) Reset() {
	h.start, h.n = 0, 0
}

// Len returns the number of buffered samples.
func (h *History) Len() int {
	return h.n
}

// Samples returns a copy of the buffered samples, oldest first.
func (h *History) Samples() []position.Sample {
	out := make([]position.Sample, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%HistoryCapacity]
	}
	return out
}

// Timed returns the buffered samples as timestamped coordinates.
func (h *History) Timed() []geo.Timed {
	out := make([]geo.Timed, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%HistoryCapacity].Timed()
	}
	return out
}

// Path returns the buffered coordinates, oldest first.
func (h *History) Path() []geo.Coordinate {
	out := make([]geo.Coordinate, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%HistoryCapacity].Coordinate()
	}
	return out
}
