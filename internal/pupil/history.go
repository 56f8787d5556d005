package pupil

import (
	"sort"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// HistoryStore keeps bounded per-parameter histories of a track's model.
// The short-term history receives one entry per frame. The long-term
// history, when enabled, receives the mean of the last ltRatio short-term
// entries every ltRatio frames.
type HistoryStore struct {
	shortTerm [ellipse.NumParams]*RingBuffer
	longTerm  [ellipse.NumParams]*RingBuffer

	ltRatio         int
	longTermEnabled bool
	seed            ellipse.Params

	failed map[int]struct{}
}

// NewHistoryStore creates a store whose buffers hold capacity entries.
// seed is duplicated when the first stashed frame is a failure.
func NewHistoryStore(capacity, ltRatio int, longTerm bool, seed ellipse.Params) *HistoryStore {
	if ltRatio < 1 {
		ltRatio = 1
	}
	h := &HistoryStore{
		ltRatio:         ltRatio,
		longTermEnabled: longTerm,
		seed:            seed,
		failed:          make(map[int]struct{}),
	}
	for i := 0; i < ellipse.NumParams; i++ {
		h.shortTerm[i] = NewRingBuffer(capacity)
		h.longTerm[i] = NewRingBuffer(capacity)
	}
	return h
}

// Stash records the outcome of frame frameIndex and returns the entry that
// was stored. A failed frame (ok == false) duplicates the previous entry
// and is remembered in the failed-frame set.
func (h *HistoryStore) Stash(frameIndex int, p ellipse.Params, ok bool) ellipse.Params {
	if !ok {
		h.failed[frameIndex] = struct{}{}
		if last, found := h.Latest(); found {
			p = last
		} else {
			p = h.seed
		}
	}

	v := p.Values()
	for i := range v {
		h.shortTerm[i].Add(v[i])
	}

	if h.longTermEnabled && frameIndex > 0 && frameIndex%h.ltRatio == 0 {
		var mean [ellipse.NumParams]float64
		for i := range mean {
			mean[i] = h.shortTerm[i].MeanLast(h.ltRatio)
			h.longTerm[i].Add(mean[i])
		}
	}
	return p
}

// Len returns the number of short-term entries.
func (h *HistoryStore) Len() int { return h.shortTerm[0].Len() }

// Latest returns the most recent short-term entry.
func (h *HistoryStore) Latest() (ellipse.Params, bool) {
	return lastParams(h.shortTerm)
}

// MeanLast returns the per-parameter mean of the k most recent short-term
// entries.
func (h *HistoryStore) MeanLast(k int) ellipse.Params {
	var v [ellipse.NumParams]float64
	for i := range v {
		v[i] = h.shortTerm[i].MeanLast(k)
	}
	return ellipse.FromValues(v)
}

// ShortTerm returns the short-term entries, oldest first.
func (h *HistoryStore) ShortTerm() []ellipse.Params {
	return paramsSeries(h.shortTerm)
}

// Series returns the short-term values of parameter i (ordered x, y, a, b,
// theta), oldest first.
func (h *HistoryStore) Series(i int) []float64 {
	if i < 0 || i >= ellipse.NumParams {
		return nil
	}
	return h.shortTerm[i].Values()
}

// LongTerm returns the long-term entries, oldest first.
func (h *HistoryStore) LongTerm() []ellipse.Params {
	return paramsSeries(h.longTerm)
}

// LatestLongTerm returns the most recent long-term entry.
func (h *HistoryStore) LatestLongTerm() (ellipse.Params, bool) {
	return lastParams(h.longTerm)
}

// IsFailed reports whether frameIndex was stashed as a failure.
func (h *HistoryStore) IsFailed(frameIndex int) bool {
	_, ok := h.failed[frameIndex]
	return ok
}

// FailedFrames returns the failed frame indices in ascending order.
func (h *HistoryStore) FailedFrames() []int {
	out := make([]int, 0, len(h.failed))
	for idx := range h.failed {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func lastParams(bufs [ellipse.NumParams]*RingBuffer) (ellipse.Params, bool) {
	var v [ellipse.NumParams]float64
	for i := range v {
		last, ok := bufs[i].Last()
		if !ok {
			return ellipse.Params{}, false
		}
		v[i] = last
	}
	return ellipse.FromValues(v), true
}

func paramsSeries(bufs [ellipse.NumParams]*RingBuffer) []ellipse.Params {
	var cols [ellipse.NumParams][]float64
	for i := range cols {
		cols[i] = bufs[i].Values()
	}
	out := make([]ellipse.Params, len(cols[0]))
	for j := range out {
		var v [ellipse.NumParams]float64
		for i := range v {
			v[i] = cols[i][j]
		}
		out[j] = ellipse.FromValues(v)
	}
	return out
}
