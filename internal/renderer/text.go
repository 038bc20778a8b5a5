package renderer

import (
	"errors"
	"image"
	"math"
	"strings"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/ivlev/timeline2video/internal/timeline"
)

const defaultFontSize = 16

// outlineSteps is the number of offset copies drawn for a text outline.
const outlineSteps = 16

// WrapText breaks s into lines no wider than maxWidth, measuring words one
// at a time. Explicit newlines always break. A single word wider than
// maxWidth gets a line of its own.
func WrapText(s string, maxWidth float64, measure func(string) float64) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if maxWidth > 0 && measure(candidate) > maxWidth {
				lines = append(lines, line)
				line = w
				continue
			}
			line = candidate
		}
		lines = append(lines, line)
	}
	return lines
}

func alignOffset(align timeline.Align, boxWidth, lineWidth float64) float64 {
	switch align {
	case timeline.AlignCenter:
		return (boxWidth - lineWidth) / 2
	case timeline.AlignRight:
		return boxWidth - lineWidth
	}
	return 0
}

// renderText rasterizes a text element into a surface the size of its box.
func renderText(fonts *FontSet, el *timeline.Text) (image.Image, error) {
	w, h := int(math.Ceil(el.Width)), int(math.Ceil(el.Height))
	if w <= 0 || h <= 0 {
		return nil, errors.New("text box is empty")
	}
	if fonts == nil {
		return nil, errors.New("no fonts")
	}

	size := el.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	face := fonts.Face(el.FontName, strings.EqualFold(el.FontWeight, "bold"), strings.EqualFold(el.FontStyle, "italic"), size)
	metrics := face.Metrics()
	lineHeight := metrics.LineHeight()

	lines := WrapText(el.Text, el.Width, face.Advance)
	widths := make([]float64, len(lines))
	widest := 0.0
	for i, l := range lines {
		widths[i], _ = text.Measure(l, face)
		widest = math.Max(widest, widths[i])
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.SetFont(face)

	if el.Background.Enable {
		dc.SetHexColor(colorOr(el.Background.Color, "#000000"))
		dc.DrawRectangle(alignOffset(el.Align, el.Width, widest), 0, widest, lineHeight*float64(len(lines)))
		if err := dc.Fill(); err != nil {
			return nil, err
		}
	}

	for i, l := range lines {
		x := alignOffset(el.Align, el.Width, widths[i])
		y := float64(i)*lineHeight + metrics.Ascent

		if el.Outline.Enable && el.Outline.Size > 0 {
			dc.SetHexColor(colorOr(el.Outline.Color, "#000000"))
			for k := 0; k < outlineSteps; k++ {
				dy, dx := math.Sincos(2 * math.Pi * float64(k) / outlineSteps)
				dc.DrawString(l, x+dx*el.Outline.Size, y+dy*el.Outline.Size)
			}
		}
		dc.SetHexColor(colorOr(el.TextColor, "#ffffff"))
		dc.DrawString(l, x, y)
	}
	return dc.Image(), nil
}

// renderShape fills the polygon of a shape element. Points are relative to
// the element and were recorded at OriginalWidth x OriginalHeight.
func renderShape(el *timeline.Shape) (image.Image, error) {
	w, h := int(math.Ceil(el.Width)), int(math.Ceil(el.Height))
	if w <= 0 || h <= 0 {
		return nil, errors.New("shape box is empty")
	}
	if len(el.Points) < 3 {
		return nil, errors.New("shape needs at least 3 points")
	}

	rx, ry := 1.0, 1.0
	if el.OriginalWidth > 0 {
		rx = el.OriginalWidth / el.Width
	}
	if el.OriginalHeight > 0 {
		ry = el.OriginalHeight / el.Height
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.SetHexColor(colorOr(el.FillColor, "#ffffff"))
	for i, p := range el.Points {
		if i == 0 {
			dc.MoveTo(p.X/rx, p.Y/ry)
		} else {
			dc.LineTo(p.X/rx, p.Y/ry)
		}
	}
	dc.ClosePath()
	if err := dc.Fill(); err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

func colorOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
