package pupil

import (
	"gonum.org/v1/gonum/stat"
)

// RingBuffer is a fixed-capacity sequence of float64 samples. Adding to a
// full buffer evicts the oldest sample.
type RingBuffer struct {
	values []float64
	head   int // Next write position
	size   int // Current number of samples stored
}

// NewRingBuffer creates a ring buffer with the given capacity (minimum 1).
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{values: make([]float64, capacity)}
}

// Add appends v, overwriting the oldest sample if at capacity.
func (r *RingBuffer) Add(v float64) {
	r.values[r.head] = v
	r.head = (r.head + 1) % len(r.values)
	if r.size < len(r.values) {
		r.size++
	}
}

// Len returns the number of samples stored.
func (r *RingBuffer) Len() int { return r.size }

// Cap returns the maximum number of samples.
func (r *RingBuffer) Cap() int { return len(r.values) }

// Last returns the most recent sample.
func (r *RingBuffer) Last() (float64, bool) {
	if r.size == 0 {
		return 0, false
	}
	return r.values[(r.head-1+len(r.values))%len(r.values)], true
}

// LastN returns up to k of the most recent samples, oldest first.
func (r *RingBuffer) LastN(k int) []float64 {
	if k > r.size {
		k = r.size
	}
	if k <= 0 {
		return nil
	}
	out := make([]float64, k)
	for i := 0; i < k; i++ {
		idx := (r.head - k + i + len(r.values)) % len(r.values)
		out[i] = r.values[idx]
	}
	return out
}

// Values returns all samples, oldest first.
func (r *RingBuffer) Values() []float64 {
	return r.LastN(r.size)
}

// Mean returns the mean of all samples, or 0 when empty.
func (r *RingBuffer) Mean() float64 {
	return r.MeanLast(r.size)
}

// MeanLast returns the mean of the k most recent samples, or 0 when empty.
func (r *RingBuffer) MeanLast(k int) float64 {
	vals := r.LastN(k)
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// Clear removes all samples.
func (r *RingBuffer) Clear() {
	for i := range r.values {
		r.values[i] = 0
	}
	r.head = 0
	r.size = 0
}
