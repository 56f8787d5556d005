package pipeline

import (
	"context"
	"io"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

// Frame is one unit of work for a track. Index must increase by one
// from frame to frame, starting at 0. Points, when non-nil, are used as
// the edge points directly; otherwise the track's edge detector runs on
// Image.
type Frame struct {
	Index  int
	Image  *mat.Dense
	Points []ellipse.Point
}

// FrameSource delivers the frames of a single track in order. Next returns
// io.EOF once the sequence is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// SliceSource is a FrameSource over an in-memory slice.
type SliceSource struct {
	mu     sync.Mutex
	frames []Frame
	pos    int
}

// NewSliceSource creates a source that yields frames in slice order.
func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next returns the next frame, or io.EOF at the end.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// ChannelSource is a FrameSource fed by a producer goroutine. The producer
// closes the channel to end the sequence.
type ChannelSource <-chan Frame

// Next blocks until a frame arrives, the channel closes or ctx is done.
func (c ChannelSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-c:
		if !ok {
			return Frame{}, io.EOF
		}
		return f, nil
	}
}
