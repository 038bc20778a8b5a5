package analyzer

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ContrastDetector marks Sobel edges, grows them until neighbouring strokes
// merge and reports the bounding boxes of the merged areas.
type ContrastDetector struct {
	MinBlockArea  int     // px²
	EdgeThreshold float64 // gradient magnitude
	Spread        int     // dilation radius in px
	Passes        int
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500,
		EdgeThreshold: 30,
		Spread:        2,
		Passes:        2,
	}
}

func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("empty image")
	}
	w, h := b.Dx(), b.Dy()

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Rect, img, b.Min, draw.Src)

	mask := edgeMask(gray, d.EdgeThreshold)
	for i := 0; i < d.Passes; i++ {
		mask = dilate(mask, w, h, d.Spread)
	}

	var blocks []Block
	for _, r := range components(mask, w, h) {
		if r.Dx()*r.Dy() < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{Rect: r.Add(b.Min), Confidence: 0.7})
	}
	return blocks, nil
}

// edgeMask thresholds the Sobel gradient magnitude. The one pixel border is
// never an edge.
func edgeMask(g *image.Gray, threshold float64) []bool {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	mask := make([]bool, w*h)
	px := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			mask[y*w+x] = math.Hypot(gx, gy) > threshold
		}
	}
	return mask
}

// dilate grows the mask by r pixels with a square kernel, done as a
// horizontal and a vertical pass.
func dilate(mask []bool, w, h, r int) []bool {
	if r <= 0 {
		return mask
	}
	rows := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := max(0, x-r); k <= min(w-1, x+r); k++ {
				if mask[y*w+k] {
					rows[y*w+x] = true
					break
				}
			}
		}
	}

	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := max(0, y-r); k <= min(h-1, y+r); k++ {
				if rows[k*w+x] {
					out[y*w+x] = true
					break
				}
			}
		}
	}
	return out
}

// components returns the bounding box of every 4-connected set area.
func components(mask []bool, w, h int) []image.Rectangle {
	seen := make([]bool, len(mask))
	var rects []image.Rectangle
	var stack []int

	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		box := image.Rect(start%w, start/w, start%w+1, start/w+1)

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			box = box.Union(image.Rect(x, y, x+1, y+1))

			visit := func(nx, ny int) {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					return
				}
				j := ny*w + nx
				if mask[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
			visit(x+1, y)
			visit(x-1, y)
			visit(x, y+1)
			visit(x, y-1)
		}
		rects = append(rects, box)
	}
	return rects
}
