// Package renderer composites one timeline frame: it sorts elements by
// priority, resolves animated properties and draws every visible layer onto
// a reused RGBA surface.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/ivlev/timeline2video/internal/assets"
	"github.com/ivlev/timeline2video/internal/curve"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// Options controls a single RenderFrameAt call.
type Options struct {
	// Background fills the target before drawing. Nil leaves it transparent.
	Background color.Color
	// Ready holds one completion channel per video element whose seek was
	// started ahead of drawing. Videos without an entry seek inline.
	Ready map[string]<-chan error
	// DebugStamp overlays FrameIndex and the frame time.
	DebugStamp bool
	FrameIndex int
}

// Compositor draws frames from a timeline and its shared stores. It holds
// no per-frame state; calls must not overlap on the same target.
type Compositor struct {
	Curves  *curve.Store
	Assets  *assets.Cache
	Filters *effects.Pipeline
	Fonts   *FontSet
}

func NewCompositor(curves *curve.Store, cache *assets.Cache, filters *effects.Pipeline, fonts *FontSet) *Compositor {
	return &Compositor{Curves: curves, Assets: cache, Filters: filters, Fonts: fonts}
}

// Release drops the decoder and filter context held for one element. The
// element is reloaded on its next Preload.
func (c *Compositor) Release(elementID string) {
	if c.Assets != nil {
		c.Assets.Invalidate(elementID)
	}
	if c.Filters != nil {
		c.Filters.Release(elementID)
	}
}

// RenderFrameAt renders the snapshot at timeline time t (ms) into target.
func (c *Compositor) RenderFrameAt(ctx context.Context, snap *timeline.Snapshot, t float64, target *image.RGBA, opts Options) error {
	return c.RenderSorted(ctx, timeline.SortByPriority(snap.Elements), t, target, opts)
}

// RenderSorted is RenderFrameAt for elements already in draw order.
// Failing elements are skipped; only cancellation is returned.
func (c *Compositor) RenderSorted(ctx context.Context, sorted []timeline.Element, t float64, target *image.RGBA, opts Options) error {
	if opts.Background != nil {
		draw.Draw(target, target.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	} else {
		clear(target.Pix)
	}

	for _, e := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !timeline.Visible(e, t) {
			continue
		}
		if err := c.drawElement(ctx, e, t, target, opts); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logging.Logger().Debug("element skipped", "element", e.Common().ID, "kind", e.Kind(), "t", t, "err", err)
		}
	}

	if opts.DebugStamp {
		if err := drawStamp(target, c.Fonts, opts.FrameIndex, t); err != nil {
			logging.Logger().Warn("debug stamp", "err", err)
		}
	}
	return nil
}

func (c *Compositor) drawElement(ctx context.Context, e timeline.Element, t float64, target *image.RGBA, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	st := ResolveState(c.Curves, e, t)
	switch el := e.(type) {
	case *timeline.Image:
		img, ok := c.Assets.Image(el.Path)
		if !ok {
			return fmt.Errorf("%s: %w", el.Path, assets.ErrNotLoaded)
		}
		drawLayer(target, img, st)

	case *timeline.Gif:
		g, ok := c.Assets.Gif(el.Path)
		if !ok {
			return fmt.Errorf("%s: %w", el.Path, assets.ErrNotLoaded)
		}
		frame := g.FrameAt((t - el.StartTime) * el.PlaybackSpeed())
		if frame == nil {
			return errors.New("gif has no frames")
		}
		drawLayer(target, frame, st)

	case *timeline.Video:
		return c.drawVideo(ctx, el, t, target, st, opts)

	case *timeline.Text:
		img, err := renderText(c.Fonts, el)
		if err != nil {
			return err
		}
		drawLayer(target, img, st)

	case *timeline.Shape:
		img, err := renderShape(el)
		if err != nil {
			return err
		}
		drawLayer(target, img, st)

	default:
		return fmt.Errorf("unsupported element kind %q", e.Kind())
	}
	return nil
}

// drawVideo waits until the decoder reached the frame for t, runs the
// filter stack and draws the result.
func (c *Compositor) drawVideo(ctx context.Context, el *timeline.Video, t float64, target *image.RGBA, st LayerState, opts Options) error {
	dec, ok := c.Assets.Video(el.ID)
	if !ok {
		return fmt.Errorf("%s: %w", el.Path, assets.ErrNotLoaded)
	}

	if ready, ok := opts.Ready[el.ID]; ok {
		select {
		case err := <-ready:
			if err != nil {
				return fmt.Errorf("seek: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := dec.Seek(ctx, timeline.PresentationTime(el, t)); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	frame := dec.Frame()
	if frame == nil {
		return errors.New("decoder has no frame")
	}
	if el.Filter.Enable && len(el.Filter.List) > 0 && c.Filters != nil {
		size := image.Pt(int(math.Round(st.Width)), int(math.Round(st.Height)))
		frame = c.Filters.Apply(el.ID, frame, el.Filter.List, size)
	}
	drawLayer(target, frame, st)
	return nil
}
