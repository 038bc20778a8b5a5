// Package engine drives a frame-by-frame export: it renders every frame of a
// timeline snapshot in order, waits for video seeks, serializes the surface
// and streams it to an encoder.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/google/uuid"

	"github.com/ivlev/timeline2video/internal/assets"
	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/renderer"
	"github.com/ivlev/timeline2video/internal/system"
	"github.com/ivlev/timeline2video/internal/timeline"
	"github.com/ivlev/timeline2video/internal/video"
)

var (
	ErrNoDestination  = errors.New("no export destination")
	ErrDestinationDir = errors.New("destination directory does not exist")
	ErrEmptyTimeline  = errors.New("timeline has no frames")
)

type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRenderFrame
	StateAwaitDynamicReadiness
	StateEncode
	StateFinished
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRenderFrame:
		return "render"
	case StateAwaitDynamicReadiness:
		return "await-readiness"
	case StateEncode:
		return "encode"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stats are collected during Run.
type Stats struct {
	Frames  int
	Total   time.Duration
	Prepare time.Duration
	Render  time.Duration
	Encode  time.Duration
	Memory  system.MemoryStats
}

// Job is one export of a snapshot. A Job runs once.
type Job struct {
	ID         string
	Config     *config.Config
	Snapshot   *timeline.Snapshot
	Encoder    video.Encoder
	Compositor *renderer.Compositor

	// Progress is called after frame i of total was handed to the encoder.
	// The completed fraction is i/total.
	Progress func(i, total int)

	mu    sync.Mutex
	state State
	stats Stats
}

func NewJob(cfg *config.Config, snap *timeline.Snapshot, enc video.Encoder, comp *renderer.Compositor) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Config:     cfg,
		Snapshot:   snap,
		Encoder:    enc,
		Compositor: comp,
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// TotalFrames is fps × duration in seconds, rounded.
func TotalFrames(fps int, durationMs float64) int {
	return int(math.Round(float64(fps) * durationMs / 1000))
}

// Run exports the snapshot. Destination problems are reported before any
// frame work. On cancellation the encoder is aborted, the partial output
// removed and ctx.Err() returned.
func (j *Job) Run(ctx context.Context) (err error) {
	cfg := j.Config
	log := logging.Logger().With("job", j.ID)

	if cfg.OutputVideo == "" {
		return ErrNoDestination
	}
	if dir := filepath.Dir(cfg.OutputVideo); dir != "" {
		if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrDestinationDir, dir)
		}
	}
	if derr := j.Compositor.Assets.ResolveDurations(ctx, j.Snapshot, cfg.Workers); derr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("some durations could not be probed", "err", derr)
	}
	total := TotalFrames(cfg.FPS, j.Snapshot.TotalDuration())
	if total <= 0 {
		return ErrEmptyTimeline
	}

	startTime := time.Now()
	j.setState(StatePreparing)
	if err := os.Remove(cfg.OutputVideo); err != nil && !errors.Is(err, os.ErrNotExist) {
		j.setState(StateFailed)
		return fmt.Errorf("remove existing output: %w", err)
	}

	sorted := timeline.SortByPriority(j.Snapshot.Elements)
	if perr := j.Compositor.Assets.Preload(ctx, j.Snapshot, cfg.Workers); perr != nil {
		if ctx.Err() != nil {
			j.setState(StateCancelled)
			return ctx.Err()
		}
		log.Warn("some assets failed to load", "err", perr)
	}

	opts := video.StreamOptions{
		Output:       cfg.OutputVideo,
		Width:        cfg.Width,
		Height:       cfg.Height,
		FPS:          cfg.FPS,
		Codec:        cfg.Codec,
		VideoEncoder: cfg.VideoEncoder,
		Quality:      cfg.Quality,
	}
	if err := j.Encoder.StartStream(ctx, opts, j.Snapshot); err != nil {
		j.setState(StateFailed)
		return fmt.Errorf("start stream: %w", err)
	}
	prepared := time.Now()
	log.Info("export started", "output", cfg.OutputVideo, "frames", total, "size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "fps", cfg.FPS)

	defer func() {
		if err == nil {
			return
		}
		if abortErr := j.Encoder.Abort(); abortErr != nil {
			log.Warn("encoder abort failed", "err", abortErr)
		}
		if rmErr := os.Remove(cfg.OutputVideo); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("partial output not removed", "err", rmErr)
		}
		if ctx.Err() != nil {
			j.setState(StateCancelled)
			err = ctx.Err()
			log.Info("export cancelled")
		} else {
			j.setState(StateFailed)
			log.Error("export failed", "err", err)
		}
	}()

	// One surface per job, redrawn in place for every frame.
	target := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	background := parseBackground(cfg.Background)

	ends := videoEnds(sorted)
	var renderTime, encodeTime time.Duration
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := float64(i) / float64(cfg.FPS) * 1000

		j.setState(StateRenderFrame)
		frameStart := time.Now()
		ready, settle := j.startSeeks(ctx, sorted, t)
		if len(ready) > 0 {
			log.Debug("frame needs to delay", "frame", i, "videos", len(ready))
		}

		j.setState(StateAwaitDynamicReadiness)
		rerr := j.Compositor.RenderSorted(ctx, sorted, t, target, renderer.Options{
			Background: background,
			Ready:      ready,
			DebugStamp: cfg.DebugStamp,
			FrameIndex: i,
		})
		settle()
		if rerr != nil {
			return rerr
		}
		renderTime += time.Since(frameStart)
		j.retire(ends, float64(i+1)/float64(cfg.FPS)*1000)

		j.setState(StateEncode)
		encStart := time.Now()
		data, err := video.EncodeFrame(target, cfg.Codec, cfg.Quality)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := j.Encoder.SendFrame(data); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		encodeTime += time.Since(encStart)

		if j.Progress != nil {
			j.Progress(i, total)
		}
	}

	if err := j.Encoder.FinishStream(); err != nil {
		return fmt.Errorf("finish stream: %w", err)
	}
	j.setState(StateFinished)

	stats := Stats{
		Frames:  total,
		Total:   time.Since(startTime),
		Prepare: prepared.Sub(startTime),
		Render:  renderTime,
		Encode:  encodeTime,
	}
	if mem, merr := system.ReadMemoryStats(context.WithoutCancel(ctx)); merr == nil {
		stats.Memory = mem
	}
	j.mu.Lock()
	j.stats = stats
	j.mu.Unlock()

	log.Info("export finished", "frames", total, "elapsed", stats.Total.Round(time.Millisecond))
	return nil
}

// startSeeks issues one seek per visible video at t. The returned func
// blocks until every seek has completed, whether or not the compositor
// consumed its result.
func (j *Job) startSeeks(ctx context.Context, sorted []timeline.Element, t float64) (map[string]<-chan error, func()) {
	var wg sync.WaitGroup
	ready := make(map[string]<-chan error)
	for _, e := range sorted {
		v, ok := e.(*timeline.Video)
		if !ok || !timeline.Visible(v, t) {
			continue
		}
		dec, ok := j.Compositor.Assets.Video(v.ID)
		if !ok {
			continue
		}
		done := assets.SeekAsync(ctx, dec, timeline.PresentationTime(v, t))
		out := make(chan error, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- <-done
		}()
		ready[v.ID] = out
	}
	return ready, wg.Wait
}

// videoEnds maps each video to the time after which it is never visible.
func videoEnds(sorted []timeline.Element) map[string]float64 {
	ends := make(map[string]float64)
	for _, e := range sorted {
		if v, ok := e.(*timeline.Video); ok {
			ends[v.ID] = math.Min(timeline.VisibilityWindow(v).End, timeline.TrimWindow(v).End)
		}
	}
	return ends
}

// retire releases the decoders and filter contexts of videos that end
// before next. Released ids are removed from ends.
func (j *Job) retire(ends map[string]float64, next float64) {
	for id, end := range ends {
		if next >= end {
			j.Compositor.Release(id)
			delete(ends, id)
		}
	}
}

// Report formats the stats the way the benchmark summary is printed.
func (j *Job) Report() string {
	s := j.Stats()
	fps := 0.0
	if s.Total > 0 {
		fps = float64(s.Frames) / s.Total.Seconds()
	}
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Job: %s\n"+
			"Frames: %d\n"+
			"Total Time: %.2fs\n"+
			"Preparing: %.2fs\n"+
			"Rendering: %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"Memory: %s\n"+
			"----------------------------\n",
		j.Config.BuildVersion, j.ID, s.Frames, s.Total.Seconds(), s.Prepare.Seconds(),
		s.Render.Seconds(), s.Encode.Seconds(), fps, s.Memory,
	)
}

// Close releases decoders and shader contexts held for the export.
func (j *Job) Close() {
	if j.Compositor.Assets != nil {
		j.Compositor.Assets.Reset()
	}
	if j.Compositor.Filters != nil {
		j.Compositor.Filters.Reset()
	}
}

func parseBackground(s string) color.Color {
	if s == "" {
		return nil
	}
	return gg.Hex(s).Color()
}
