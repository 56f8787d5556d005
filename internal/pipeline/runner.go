package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pupiltrack/internal/config"
	"github.com/banshee-data/pupiltrack/internal/contour"
	"github.com/banshee-data/pupiltrack/internal/debug"
	"github.com/banshee-data/pupiltrack/internal/edges"
	"github.com/banshee-data/pupiltrack/internal/ellipse"
	"github.com/banshee-data/pupiltrack/internal/monitoring"
	"github.com/banshee-data/pupiltrack/internal/pupil"
	"github.com/banshee-data/pupiltrack/internal/timeutil"
)

var (
	// ErrOutOfOrder is reported for a track whose source skipped or
	// repeated a frame index.
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrNoSource is reported for a TrackSpec without a FrameSource.
	ErrNoSource = errors.New("no frame source")
)

var _ pupil.DebugCollector = (*debug.DebugCollector)(nil)

// TrackSpec describes one track to run: where its pupil starts and where
// its frames come from.
type TrackSpec struct {
	Name   string
	X, Y   float64
	Radius float64
	Source FrameSource
}

// TrackResult is the outcome of running one track.
type TrackResult struct {
	Name    string
	Track   *pupil.Track
	Frames  []pupil.FrameResult
	Debug   []*debug.DebugFrame // Populated when Runner.CollectDebug is set
	Scores  []FrameScore        // Populated when Runner.Scorer is set
	Started time.Time
	Elapsed time.Duration
	Err     error // Why the track stopped early, nil when its source was exhausted
}

// FailedFrames returns the number of frames the track rejected.
func (r TrackResult) FailedFrames() int {
	n := 0
	for _, f := range r.Frames {
		if f.Failed() {
			n++
		}
	}
	return n
}

// Runner processes tracks in parallel, one goroutine per track.
type Runner struct {
	Config pupil.TrackConfig

	// NewCollaborators builds the collaborators of one track. It is called
	// once per track so that stateful collaborators are never shared. Nil
	// gives every track the default least-squares fitter only.
	NewCollaborators func() pupil.Collaborators

	MaxParallel  int // Tracks run at once; 0 means no limit
	CollectDebug bool
	Clock        timeutil.Clock

	// Scorer, when set, rates every updated model against its frame.
	Scorer *Scorer

	// OnFrame, when set, is called after every frame from the track's
	// goroutine. Implementations must be safe for concurrent use.
	OnFrame func(name string, res pupil.FrameResult)
}

// NewRunner creates a runner for tracks with the given configuration.
func NewRunner(cfg pupil.TrackConfig) *Runner {
	return &Runner{Config: cfg, Clock: timeutil.RealClock{}}
}

// StandardCollaborators returns a factory for the full image pipeline:
// the gocv edge detector, the active contour refiner and the
// least-squares fitter, all configured from cfg.
func StandardCollaborators(cfg *config.TuningConfig) func() pupil.Collaborators {
	edgeCfg := edges.ConfigFromTuning(cfg)
	snakeCfg := contour.ConfigFromTuning(cfg)
	return func() pupil.Collaborators {
		return pupil.Collaborators{
			Fitter:   ellipse.LeastSquaresFitter{},
			Refiner:  contour.NewSnake(snakeCfg),
			Detector: edges.NewDetector(edgeCfg),
		}
	}
}

// Run processes every track to completion, cancellation or error and
// returns one result per TrackSpec, in the order given.
func (r *Runner) Run(ctx context.Context, specs []TrackSpec) []TrackResult {
	clock := r.clock()
	start := clock.Now()
	results := make([]TrackResult, len(specs))

	var g errgroup.Group
	if r.MaxParallel > 0 {
		g.SetLimit(r.MaxParallel)
	}
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = r.runTrack(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	var frames, failed, stopped int
	for _, res := range results {
		frames += len(res.Frames)
		failed += res.FailedFrames()
		if res.Err != nil {
			stopped++
		}
	}
	monitoring.Logf("pipeline: %d tracks, %d frames (%d failed), %d stopped early, in %v",
		len(specs), frames, failed, stopped, clock.Since(start))
	return results
}

func (r *Runner) runTrack(ctx context.Context, spec TrackSpec) TrackResult {
	clock := r.clock()

	collab := pupil.Collaborators{}
	if r.NewCollaborators != nil {
		collab = r.NewCollaborators()
	}
	var collector *debug.DebugCollector
	if r.CollectDebug {
		collector = debug.NewDebugCollector()
		collector.SetEnabled(true)
		collab.Debug = collector
	}

	track := pupil.NewTrack(r.Config, spec.X, spec.Y, spec.Radius, collab)
	name := spec.Name
	if name == "" {
		name = track.ID
	}
	res := TrackResult{Name: name, Track: track, Started: clock.Now()}

	if spec.Source == nil {
		res.Err = fmt.Errorf("track %s: %w", name, ErrNoSource)
		opsf("%v", res.Err)
		return res
	}

	diagf("track %s (%s) started at %s", name, track.ID, track.CurrentModel())
	res.Err = r.consume(ctx, name, spec.Source, track, collector, &res)
	if res.Err != nil {
		opsf("track %s stopped after %d frames: %v", name, len(res.Frames), res.Err)
	}
	diagf("track %s finished: %d frames, %d failed, model %s",
		name, len(res.Frames), res.FailedFrames(), track.CurrentModel())

	res.Elapsed = clock.Since(res.Started)
	return res
}

// consume feeds frames from src to track until the source is exhausted,
// ctx is cancelled or a frame arrives out of order.
func (r *Runner) consume(ctx context.Context, name string, src FrameSource, track *pupil.Track, collector *debug.DebugCollector, res *TrackResult) error {
	next := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("track %s: %w", name, err)
		}
		if f.Index != next {
			return fmt.Errorf("%w: track %s got frame %d, want %d", ErrOutOfOrder, name, f.Index, next)
		}
		next++

		if collector != nil {
			collector.BeginFrame(f.Index)
		}
		var fr pupil.FrameResult
		if f.Points != nil {
			fr = track.Update(f.Points, f.Image)
		} else {
			fr = track.ProcessFrame(f.Image)
		}
		if r.Scorer != nil {
			score := r.Scorer.Score(fr.FrameIndex, fr.Model, fr.Points, f.Image)
			res.Scores = append(res.Scores, score)
			if collector != nil {
				collector.RecordScore(score.Coverage, score.BoundaryMagnitude)
			}
		}
		if collector != nil {
			if df := collector.Emit(); df != nil {
				res.Debug = append(res.Debug, df)
			}
		}
		res.Frames = append(res.Frames, fr)

		tracef("track %s frame %d: points=%d tolerance=%.3f failed=%v", name, fr.FrameIndex, fr.Points, fr.Tolerance, fr.Failed())
		if r.OnFrame != nil {
			r.OnFrame(name, fr)
		}
	}
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}
