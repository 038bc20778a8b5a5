// Package assets loads and caches the media a timeline refers to: still
// images, gif frame sets and seekable video decoders.
package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/system"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// ErrNotLoaded is returned when an asset is needed but was never loaded.
var ErrNotLoaded = errors.New("asset not loaded")

// DecoderFactory opens a video decoder for a spec.
type DecoderFactory func(ctx context.Context, spec VideoSpec) (Decoder, error)

// DurationProber returns the length of a media file in seconds.
type DurationProber func(ctx context.Context, path string) (float64, error)

// Cache owns every loaded asset. Images and gifs are keyed by path, video
// decoders by element id. Lookups never block on loads.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
	gifs   map[string]*Gif
	videos map[string]Decoder

	group      singleflight.Group
	newDecoder DecoderFactory
	probe      DurationProber
}

func NewCache() *Cache {
	c := NewCacheWithDecoder(func(ctx context.Context, spec VideoSpec) (Decoder, error) {
		return NewFFmpegDecoder(ctx, spec)
	})
	c.probe = system.ProbeDuration
	return c
}

// NewCacheWithDecoder builds a cache that opens videos through f.
func NewCacheWithDecoder(f DecoderFactory) *Cache {
	return &Cache{
		images:     make(map[string]image.Image),
		gifs:       make(map[string]*Gif),
		videos:     make(map[string]Decoder),
		newDecoder: f,
	}
}

func (c *Cache) Image(path string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[path]
	return img, ok
}

func (c *Cache) Gif(path string) (*Gif, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.gifs[path]
	return g, ok
}

func (c *Cache) Video(elementID string) (Decoder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.videos[elementID]
	return d, ok
}

// PutImage stores an already decoded image under path.
func (c *Cache) PutImage(path string, img image.Image) {
	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()
}

func (c *Cache) PutGif(path string, g *Gif) {
	c.mu.Lock()
	c.gifs[path] = g
	c.mu.Unlock()
}

// PutVideo stores a decoder for elementID, closing the one it replaces.
func (c *Cache) PutVideo(elementID string, d Decoder) {
	c.mu.Lock()
	old := c.videos[elementID]
	c.videos[elementID] = d
	c.mu.Unlock()
	if old != nil && old != d {
		old.Close()
	}
}

// LoadImage decodes path once; concurrent callers share the load.
func (c *Cache) LoadImage(ctx context.Context, path string) (image.Image, error) {
	if img, ok := c.Image(path); ok {
		return img, nil
	}
	v, err, _ := c.group.Do("image:"+path, func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeImageFile(path)
		if err != nil {
			return nil, err
		}
		c.PutImage(path, img)
		return img, nil
	})
	if err != nil {
		logging.Logger().Warn("image load failed", "path", path, "err", err)
		return nil, fmt.Errorf("load image %s: %w", path, err)
	}
	return v.(image.Image), nil
}

func (c *Cache) LoadGif(ctx context.Context, path string) (*Gif, error) {
	if g, ok := c.Gif(path); ok {
		return g, nil
	}
	v, err, _ := c.group.Do("gif:"+path, func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := decodeGifFile(path)
		if err != nil {
			return nil, err
		}
		c.PutGif(path, g)
		return g, nil
	})
	if err != nil {
		logging.Logger().Warn("gif load failed", "path", path, "err", err)
		return nil, fmt.Errorf("load gif %s: %w", path, err)
	}
	return v.(*Gif), nil
}

// LoadVideo opens a decoder for the element. An existing decoder for the
// same element is reused.
func (c *Cache) LoadVideo(ctx context.Context, elementID string, spec VideoSpec) (Decoder, error) {
	if d, ok := c.Video(elementID); ok {
		return d, nil
	}
	v, err, _ := c.group.Do("video:"+elementID, func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := c.newDecoder(ctx, spec)
		if err != nil {
			return nil, err
		}
		c.PutVideo(elementID, d)
		return d, nil
	})
	if err != nil {
		logging.Logger().Warn("video load failed", "element", elementID, "path", spec.Path, "err", err)
		return nil, fmt.Errorf("load video %s: %w", spec.Path, err)
	}
	return v.(Decoder), nil
}

// Preload loads every asset referenced by the snapshot with at most workers
// loads in flight. Failed assets stay absent; their errors are joined.
func (c *Cache) Preload(ctx context.Context, snap *timeline.Snapshot, workers int) error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, e := range snap.Elements {
		switch el := e.(type) {
		case *timeline.Image:
			g.Go(func() error {
				_, err := c.LoadImage(ctx, el.Path)
				record(err)
				return nil
			})
		case *timeline.Gif:
			g.Go(func() error {
				_, err := c.LoadGif(ctx, el.Path)
				record(err)
				return nil
			})
		case *timeline.Video:
			spec := VideoSpec{Path: el.Path, Width: int(el.Width), Height: int(el.Height)}
			g.Go(func() error {
				_, err := c.LoadVideo(ctx, el.ID, spec)
				record(err)
				return nil
			})
		}
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// ResolveDurations fills in the duration of video and audio elements that
// were saved without one, using the length of their source. Elements whose
// source cannot be probed keep a zero duration.
func (c *Cache) ResolveDurations(ctx context.Context, snap *timeline.Snapshot, workers int) error {
	if c.probe == nil {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, e := range snap.Elements {
		var path string
		switch el := e.(type) {
		case *timeline.Video:
			path = el.Path
		case *timeline.Audio:
			path = el.Path
		default:
			continue
		}
		b := e.Common()
		if b.Duration > 0 || path == "" {
			continue
		}
		g.Go(func() error {
			sec, err := c.probe(ctx, path)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("duration of %s: %w", b.ID, err))
				mu.Unlock()
				return nil
			}
			b.Duration = sec * 1000
			logging.Logger().Debug("duration resolved", "element", b.ID, "ms", b.Duration)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// SetDurationProber replaces the prober used by ResolveDurations. nil
// disables probing.
func (c *Cache) SetDurationProber(p DurationProber) {
	c.probe = p
}

// Invalidate drops every asset stored under key, as a path or element id.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.images, key)
	delete(c.gifs, key)
	d := c.videos[key]
	delete(c.videos, key)
	c.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

// Reset empties the cache and closes all decoders.
func (c *Cache) Reset() {
	c.mu.Lock()
	videos := c.videos
	c.images = make(map[string]image.Image)
	c.gifs = make(map[string]*Gif)
	c.videos = make(map[string]Decoder)
	c.mu.Unlock()

	for id, d := range videos {
		if err := d.Close(); err != nil {
			logging.Logger().Debug("decoder close", "element", id, "err", err)
		}
	}
}
