package renderer

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gg/text"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

const stampSize = 96

// drawStamp overlays the frame index and time as a QR code in the bottom
// right corner and as text in the top left. Exported frames can then be
// checked for frame accuracy.
func drawStamp(dst *image.RGBA, fonts *FontSet, index int, t float64) error {
	label := fmt.Sprintf("frame=%d t=%.3f", index, t/1000)

	q, err := qrcode.New(label, qrcode.Medium)
	if err != nil {
		return err
	}
	code := q.Image(stampSize)
	b := dst.Bounds()
	at := image.Pt(b.Max.X-stampSize, b.Max.Y-stampSize)
	draw.Draw(dst, image.Rectangle{Min: at, Max: b.Max}, code, code.Bounds().Min, draw.Src)

	if fonts != nil {
		face := fonts.Face(DefaultFamily, true, false, 14)
		m := face.Metrics()
		w, lh := text.Measure(label, face)
		draw.Draw(dst, image.Rect(b.Min.X, b.Min.Y, b.Min.X+int(w)+8, b.Min.Y+int(lh)+8), image.Black, image.Point{}, draw.Src)
		text.Draw(dst, label, face, float64(b.Min.X)+4, float64(b.Min.Y)+4+m.Ascent, color.White)
	}
	return nil
}
