package timeline

import (
	"math"
	"sort"
)

// Window is a half-open interval [Start, End) in timeline milliseconds.
type Window struct {
	Start float64
	End   float64
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t float64) bool {
	return t >= w.Start && t < w.End
}

// VisibilityWindow returns the interval during which an element is drawn.
// Dynamic elements last Duration/Speed.
func VisibilityWindow(e Element) Window {
	b := e.Common()
	d := b.Duration
	if dyn, ok := e.(Dynamic); ok {
		d /= dyn.PlaybackSpeed()
	}
	return Window{Start: b.StartTime, End: b.StartTime + d}
}

// Visible reports whether e contributes to the frame at t. Audio is never
// visible; video additionally has to be inside its trim range.
func Visible(e Element, t float64) bool {
	switch v := e.(type) {
	case *Audio:
		return false
	case *Video:
		if !TrimWindow(v).Contains(t) {
			return false
		}
	}
	return VisibilityWindow(e).Contains(t)
}

// TrimWindow is the timeline interval covered by a video's trim range. A
// zero trim end leaves the end open.
func TrimWindow(v *Video) Window {
	w := Window{Start: v.StartTime + v.Trim.StartTime, End: math.Inf(1)}
	if v.Trim.EndTime > 0 {
		w.End = v.StartTime + v.Trim.EndTime
	}
	return w
}

// SortByPriority returns the elements ordered by ascending priority. Equal
// priorities keep their input order.
func SortByPriority(elems []Element) []Element {
	sorted := make([]Element, len(elems))
	copy(sorted, elems)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Common().Priority < sorted[j].Common().Priority
	})
	return sorted
}

// VisibleAt filters an already sorted list down to the elements drawn at t.
func VisibleAt(sorted []Element, t float64) []Element {
	var out []Element
	for _, e := range sorted {
		if Visible(e, t) {
			out = append(out, e)
		}
	}
	return out
}

// PresentationTime is the position in seconds a video source must be at
// for timeline time t.
func PresentationTime(v *Video, t float64) float64 {
	return -(v.StartTime - t) * v.PlaybackSpeed() / 1000
}
