package assets

import (
	"errors"
	"image"
	"image/gif"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// DefaultGifDelay is used when a gif does not declare a frame delay.
const DefaultGifDelay = 100.0

// Gif is a decoded animation with every frame composed onto a full canvas.
type Gif struct {
	Frames []*image.RGBA
	Delay  float64 // ms per frame, taken from the first frame
}

// FrameAt returns the frame shown elapsed ms after the animation started.
// Playback loops.
func (g *Gif) FrameAt(elapsed float64) *image.RGBA {
	if g == nil || len(g.Frames) == 0 {
		return nil
	}
	delay := g.Delay
	if delay <= 0 {
		delay = DefaultGifDelay
	}
	n := len(g.Frames)
	idx := int(math.Floor(elapsed/delay)) % n
	if idx < 0 {
		idx += n
	}
	return g.Frames[idx]
}

func decodeGifFile(path string) (*Gif, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, err
	}
	return ComposeGif(g)
}

// ComposeGif flattens the frames of g, applying each frame's disposal.
func ComposeGif(g *gif.GIF) (*Gif, error) {
	if len(g.Image) == 0 {
		return nil, errors.New("gif has no frames")
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = image.Rectangle{}
		for _, p := range g.Image {
			bounds = bounds.Union(p.Bounds())
		}
	}

	canvas := image.NewRGBA(bounds)
	frames := make([]*image.RGBA, 0, len(g.Image))
	for i, p := range g.Image {
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var prev *image.RGBA
		if disposal == gif.DisposalPrevious {
			prev = cloneRGBA(canvas)
		}

		draw.Draw(canvas, p.Bounds(), p, p.Bounds().Min, draw.Over)
		frames = append(frames, cloneRGBA(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, p.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = prev
		}
	}

	delay := DefaultGifDelay
	if len(g.Delay) > 0 && g.Delay[0] > 0 {
		delay = float64(g.Delay[0]) * 10
	}
	return &Gif{Frames: frames, Delay: delay}, nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
