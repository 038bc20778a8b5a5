// Package director plans camera moves over still images. Detected regions
// are visited in reading order and the moves are stored as position and
// scale keyframes of the element that shows the image.
package director

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ivlev/timeline2video/internal/analyzer"
	"github.com/ivlev/timeline2video/internal/curve"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var ErrNoBlocks = errors.New("no blocks detected")

// Director turns detected blocks into a camera path for a frame of
// FrameWidth x FrameHeight.
type Director struct {
	FrameWidth  int
	FrameHeight int
	MinDwell    float64 // ms per block
	MaxDwell    float64
	Lead        float64 // ms at full view before the first and after the last block
	MaxZoom     float64
	Padding     float64 // share of the frame a focused block may fill
}

func NewDirector(frameWidth, frameHeight int) *Director {
	return &Director{
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
		MinDwell:    1000,
		MaxDwell:    3000,
		Lead:        1000,
		MaxZoom:     3,
		Padding:     0.9,
	}
}

// Shot is one camera stop: the element's top-left and scale at Time (ms,
// element-local).
type Shot struct {
	Time  float64
	Focus string
	X, Y  float64
	Zoom  float64
}

// Plan builds the shots for element b showing an image with bounds src.
// Blocks that would start after the outro are dropped.
func (d *Director) Plan(blocks []analyzer.Block, src image.Rectangle, b *timeline.Base) ([]Shot, error) {
	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}
	if src.Empty() {
		return nil, fmt.Errorf("source image %v is empty", src)
	}

	boxW, boxH := b.Width, b.Height
	if boxW <= 0 || boxH <= 0 {
		boxW, boxH = float64(src.Dx()), float64(src.Dy())
	}
	sx, sy := boxW/float64(src.Dx()), boxH/float64(src.Dy())

	full := Shot{Focus: "full_view", X: b.Location.X, Y: b.Location.Y, Zoom: 1}
	shots := []Shot{full}

	sorted := readingOrder(blocks)
	dwell := d.dwellTime(b.Duration, len(sorted))
	at := d.Lead
	if at >= b.Duration {
		at = 0
	}
	for i, blk := range sorted {
		if i > 0 && at > b.Duration-d.Lead {
			break
		}
		r := blk.Rect.Sub(src.Min)
		rw, rh := float64(r.Dx())*sx, float64(r.Dy())*sy
		cx := (float64(r.Min.X) + float64(r.Dx())/2) * sx
		cy := (float64(r.Min.Y) + float64(r.Dy())/2) * sy

		zoom := d.zoomFor(rw, rh)
		// the renderer scales around the box centre; solve for the
		// top-left that puts the block centre on the frame centre
		x := float64(d.FrameWidth)/2 - boxW/2 - zoom*(cx-boxW/2)
		y := float64(d.FrameHeight)/2 - boxH/2 - zoom*(cy-boxH/2)

		shots = append(shots, Shot{Time: at, Focus: fmt.Sprintf("region_%d", i+1), X: x, Y: y, Zoom: zoom})
		at += dwell
	}

	full.Time = math.Min(at, b.Duration)
	if full.Time > shots[len(shots)-1].Time {
		shots = append(shots, full)
	}
	return shots, nil
}

// Animations converts shots into active position and scale channels.
func Animations(shots []Shot) map[curve.Property]timeline.Animation {
	pos := timeline.Animation{Active: true, Points: map[curve.Axis][]timeline.Keyframe{}}
	scale := timeline.Animation{Active: true, Points: map[curve.Axis][]timeline.Keyframe{}}
	for _, s := range shots {
		pos.Points[curve.AxisX] = append(pos.Points[curve.AxisX], timeline.Keyframe{Time: s.Time, Value: s.X})
		pos.Points[curve.AxisY] = append(pos.Points[curve.AxisY], timeline.Keyframe{Time: s.Time, Value: s.Y})
		scale.Points[curve.AxisValue] = append(scale.Points[curve.AxisValue], timeline.Keyframe{Time: s.Time, Value: s.Zoom})
	}
	return map[curve.Property]timeline.Animation{curve.Position: pos, curve.Scale: scale}
}

// Animate detects blocks in img and stores the camera path as the
// animations of the image element id, replacing its position and scale
// channels.
func (d *Director) Animate(snap *timeline.Snapshot, id string, det analyzer.Detector, img image.Image) ([]Shot, error) {
	e, ok := snap.Find(id)
	if !ok {
		return nil, fmt.Errorf("element %q not found", id)
	}
	if _, ok := e.(*timeline.Image); !ok {
		return nil, fmt.Errorf("element %q is a %s, not an image", id, e.Kind())
	}

	blocks, err := det.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", id, err)
	}
	shots, err := d.Plan(blocks, img.Bounds(), e.Common())
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", id, err)
	}

	if snap.Animations == nil {
		snap.Animations = make(map[string]map[curve.Property]timeline.Animation)
	}
	if snap.Animations[id] == nil {
		snap.Animations[id] = make(map[curve.Property]timeline.Animation)
	}
	for prop, anim := range Animations(shots) {
		snap.Animations[id][prop] = anim
	}
	return shots, nil
}

// readingOrder sorts top to bottom, then left to right within a 20 px row.
func readingOrder(blocks []analyzer.Block) []analyzer.Block {
	sorted := make([]analyzer.Block, len(blocks))
	copy(sorted, blocks)

	const row = 20
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Rect.Min, sorted[j].Rect.Min
		if dy := a.Y - b.Y; dy > row || dy < -row {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return sorted
}

// dwellTime splits what is left after intro and outro evenly between the
// blocks, clamped to [MinDwell, MaxDwell].
func (d *Director) dwellTime(total float64, blocks int) float64 {
	available := total - 2*d.Lead
	if available <= 0 {
		available = total
	}
	dwell := available / float64(blocks)
	return math.Max(d.MinDwell, math.Min(d.MaxDwell, dwell))
}

// zoomFor fits a w x h block into the padded frame, within [1, MaxZoom].
func (d *Director) zoomFor(w, h float64) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	zoom := math.Min(float64(d.FrameWidth)*d.Padding/w, float64(d.FrameHeight)*d.Padding/h)
	return math.Max(1, math.Min(d.MaxZoom, zoom))
}
