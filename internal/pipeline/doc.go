// Package pipeline runs independent pupil tracks side by side.
//
// Each track consumes its own ordered FrameSource on its own goroutine and
// owns all of its state; nothing is shared between tracks. A failure on one
// track, including cancellation or an out-of-order frame, never stops the
// others. The pipeline does not own domain logic: it delegates every frame
// to pupil.Track.
package pipeline
