package effects

import (
	"fmt"
	"image"
	"math"
)

// RGBA is a premultiplied colour with components in [0, 1].
type RGBA [4]float64

// Texture is an uploaded frame sampled with normalized coordinates.
type Texture struct {
	img *image.RGBA
}

func NewTexture(img *image.RGBA) *Texture {
	return &Texture{img: img}
}

func (t *Texture) Size() (int, int) {
	return t.img.Rect.Dx(), t.img.Rect.Dy()
}

// At samples the nearest texel, clamping to the edge.
func (t *Texture) At(u, v float64) RGBA {
	w, h := t.Size()
	x := clampInt(int(math.Floor(u*float64(w))), 0, w-1)
	y := clampInt(int(math.Floor(v*float64(h))), 0, h-1)
	i := t.img.PixOffset(t.img.Rect.Min.X+x, t.img.Rect.Min.Y+y)
	px := t.img.Pix[i : i+4 : i+4]
	return RGBA{float64(px[0]) / 255, float64(px[1]) / 255, float64(px[2]) / 255, float64(px[3]) / 255}
}

// Fragment computes the output colour at (u, v), the centre of a target
// pixel in normalized coordinates.
type Fragment func(tex *Texture, u, v float64) RGBA

const (
	chromaThreshold = 0.5
	radialSamples   = 66
)

// Compile builds the fragment program for a named filter.
func Compile(name string, p Params) (Fragment, error) {
	switch name {
	case "chromakey":
		return chromaKey(p), nil
	case "blur":
		return boxBlur(p.Get("f")), nil
	case "radialblur":
		return radialBlur(p.Get("p")), nil
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

// chromaKey clears pixels whose colour lies within chromaThreshold of the
// key colour. Keys r, g and b are 0-255; pure green when none is given.
func chromaKey(p Params) Fragment {
	key := [3]float64{0, 1, 0}
	if p.Has("r") || p.Has("g") || p.Has("b") {
		key = [3]float64{p.Get("r") / 255, p.Get("g") / 255, p.Get("b") / 255}
	}
	return func(tex *Texture, u, v float64) RGBA {
		c := tex.At(u, v)
		if c[3] == 0 {
			return RGBA{}
		}
		r, g, b := c[0]/c[3], c[1]/c[3], c[2]/c[3]
		dist := math.Sqrt((r-key[0])*(r-key[0]) + (g-key[1])*(g-key[1]) + (b-key[2])*(b-key[2]))
		if dist < chromaThreshold {
			return RGBA{}
		}
		return c
	}
}

// boxBlur averages a 3x3 neighbourhood whose taps are f pixels apart.
func boxBlur(f float64) Fragment {
	return func(tex *Texture, u, v float64) RGBA {
		w, h := tex.Size()
		du, dv := f/float64(w), f/float64(h)
		var sum RGBA
		for j := -1; j <= 1; j++ {
			for i := -1; i <= 1; i++ {
				c := tex.At(u+float64(i)*du, v+float64(j)*dv)
				for k := range sum {
					sum[k] += c[k]
				}
			}
		}
		for k := range sum {
			sum[k] /= 9
		}
		return sum
	}
}

// radialBlur averages radialSamples rotations of the texture around its
// centre, spread evenly over power degrees.
func radialBlur(power float64) Fragment {
	sins := make([]float64, radialSamples)
	coss := make([]float64, radialSamples)
	for i := 0; i < radialSamples; i++ {
		a := (float64(i)/float64(radialSamples-1) - 0.5) * power * math.Pi / 180
		sins[i], coss[i] = math.Sincos(a)
	}
	return func(tex *Texture, u, v float64) RGBA {
		du, dv := u-0.5, v-0.5
		var sum RGBA
		for i := 0; i < radialSamples; i++ {
			c := tex.At(0.5+du*coss[i]-dv*sins[i], 0.5+du*sins[i]+dv*coss[i])
			for k := range sum {
				sum[k] += c[k]
			}
		}
		for k := range sum {
			sum[k] /= radialSamples
		}
		return sum
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
