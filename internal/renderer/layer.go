package renderer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// layerTransform maps src into the box of st: scale to the box, scale
// again by st.Scale around the box centre, rotate around the centre.
func layerTransform(src image.Rectangle, st LayerState) f64.Aff3 {
	w, h := st.Width*st.Scale, st.Height*st.Scale
	sx := w / float64(src.Dx())
	sy := h / float64(src.Dy())
	cx, cy := st.Center()
	sin, cos := math.Sincos(st.Rotation * math.Pi / 180)

	a, b := cos*sx, -sin*sy
	d, e := sin*sx, cos*sy
	c := -cos*w/2 + sin*h/2 + cx
	f := -sin*w/2 - cos*h/2 + cy

	minX, minY := float64(src.Min.X), float64(src.Min.Y)
	c -= a*minX + b*minY
	f -= d*minX + e*minY
	return f64.Aff3{a, b, c, d, e, f}
}

// drawLayer composites src onto dst with the placement and global alpha of
// st. A zero box takes the size of src.
func drawLayer(dst *image.RGBA, src image.Image, st LayerState) {
	if src == nil || st.Opacity <= 0 || st.Scale == 0 {
		return
	}
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	if st.Width <= 0 || st.Height <= 0 {
		st.Width, st.Height = float64(sb.Dx()), float64(sb.Dy())
	}

	var opts *draw.Options
	if st.Opacity < 1 {
		opts = &draw.Options{SrcMask: image.NewUniform(color.Alpha{A: uint8(math.Round(st.Opacity * 255))})}
	}
	draw.BiLinear.Transform(dst, layerTransform(sb, st), src, sb, draw.Over, opts)
}
