package effects

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// ErrContext is wrapped by errors creating or running a shading context.
var ErrContext = errors.New("shader context")

// Device creates shading contexts.
type Device interface {
	NewContext(width, height int) (Context, error)
}

// Context is an offscreen target of fixed size. Upload replaces the input
// texture; Run draws one full-screen pass and returns the target.
type Context interface {
	Upload(src image.Image)
	Run(frag Fragment) (*image.RGBA, error)
	Close()
}

// SoftwareDevice shades on the CPU, splitting rows across Workers
// goroutines.
type SoftwareDevice struct {
	Workers int
}

func NewSoftwareDevice(workers int) *SoftwareDevice {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &SoftwareDevice{Workers: workers}
}

func (d *SoftwareDevice) NewContext(width, height int) (Context, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrContext, width, height)
	}
	rect := image.Rect(0, 0, width, height)
	return &softwareContext{
		tex:     image.NewRGBA(rect),
		out:     image.NewRGBA(rect),
		workers: d.Workers,
	}, nil
}

type softwareContext struct {
	tex     *image.RGBA
	out     *image.RGBA
	workers int
}

func (c *softwareContext) Upload(src image.Image) {
	if src.Bounds().Size() == c.tex.Rect.Size() {
		draw.Draw(c.tex, c.tex.Rect, src, src.Bounds().Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(c.tex, c.tex.Rect, src, src.Bounds(), draw.Src, nil)
}

func (c *softwareContext) Run(frag Fragment) (*image.RGBA, error) {
	tex := NewTexture(c.tex)
	w, h := c.out.Rect.Dx(), c.out.Rect.Dy()

	bands := max(1, min(c.workers, h))
	rows := (h + bands - 1) / bands

	g := new(errgroup.Group)
	for y0 := 0; y0 < h; y0 += rows {
		y1 := min(y0+rows, h)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: fragment panic: %v", ErrContext, r)
				}
			}()
			for y := y0; y < y1; y++ {
				v := (float64(y) + 0.5) / float64(h)
				off := c.out.PixOffset(0, y)
				for x := 0; x < w; x++ {
					col := frag(tex, (float64(x)+0.5)/float64(w), v)
					px := c.out.Pix[off+x*4 : off+x*4+4 : off+x*4+4]
					px[0] = toByte(col[0])
					px[1] = toByte(col[1])
					px[2] = toByte(col[2])
					px[3] = toByte(col[3])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c.out, nil
}

func (c *softwareContext) Close() {
	c.tex, c.out = nil, nil
}

func toByte(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}
