package curve

import "math"

const (
	// SampleFPS is the rate the sample tables are built at.
	SampleFPS = 60

	// SampleStep is the time between two samples in milliseconds.
	SampleStep = 1000.0 / SampleFPS

	// DecimationGap is the largest gap (ms) between two control points that
	// produces no samples at all.
	DecimationGap = 5.0

	// TangentDistance is the time offset (ms) of the Bezier handles placed
	// around an inserted or replaced control point.
	TangentDistance = 50.0
)

// Vec2 is a point on the (time, value) plane.
type Vec2 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ControlPoint is a user placed keyframe with its Bezier handles.
// Handles are absolute (time, value) coordinates.
type ControlPoint struct {
	Time      float64 `yaml:"time"`
	Value     float64 `yaml:"value"`
	HandleIn  Vec2    `yaml:"handle_in"`
	HandleOut Vec2    `yaml:"handle_out"`
}

// Sample is one entry of a resampled curve.
type Sample struct {
	Time  float64
	Value float64
}

// Curve holds the control points of one axis and the table derived from them.
type Curve struct {
	Points  []ControlPoint
	Samples []Sample
}

func anchor(time, value float64) ControlPoint {
	p := Vec2{X: time, Y: value}
	return ControlPoint{Time: time, Value: value, HandleIn: p, HandleOut: p}
}

func symmetric(time, value float64) ControlPoint {
	return ControlPoint{
		Time:      time,
		Value:     value,
		HandleIn:  Vec2{X: time - TangentDistance, Y: value},
		HandleOut: Vec2{X: time + TangentDistance, Y: value},
	}
}

// insert places a point into an ordered list and reports whether an
// existing point was replaced.
func insert(points []ControlPoint, time, value float64) ([]ControlPoint, bool) {
	if len(points) == 0 {
		return []ControlPoint{anchor(time, value)}, false
	}

	for i := range points {
		if points[i].Time == time {
			points[i] = symmetric(time, value)
			return points, true
		}
	}

	p := symmetric(time, value)
	switch {
	case time < points[0].Time:
		return append([]ControlPoint{p}, points...), false
	case time > points[len(points)-1].Time:
		return append(points, p), false
	}

	for i := 0; i < len(points)-1; i++ {
		if points[i].Time < time && time < points[i+1].Time {
			points = append(points, ControlPoint{})
			copy(points[i+2:], points[i+1:])
			points[i+1] = p
			break
		}
	}
	return points, false
}

// Bezier evaluates one coordinate of a cubic Bezier segment at t in [0, 1].
func Bezier(p0, c0, c1, p1, t float64) float64 {
	mt := 1 - t
	return mt*mt*mt*p0 + 3*mt*mt*t*c0 + 3*mt*t*t*c1 + t*t*t*p1
}

// Interpolate resamples control points into a dense table. Gaps of
// DecimationGap or less emit nothing; larger gaps are sampled at SampleStep.
func Interpolate(points []ControlPoint) []Sample {
	switch len(points) {
	case 0:
		return nil
	case 1:
		return []Sample{{Time: points[0].Time, Value: points[0].Value}}
	}

	var samples []Sample
	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		gap := b.Time - a.Time
		if gap <= DecimationGap {
			continue
		}

		frames := int(math.Round(gap / SampleStep))
		if frames < 1 {
			frames = 1
		}

		// Handles reach at most a third of the gap so the time axis of the
		// segment stays monotonic.
		out := a.Time + clampOffset(a.HandleOut.X-a.Time, gap/3)
		in := b.Time - clampOffset(b.Time-b.HandleIn.X, gap/3)

		for f := 0; f <= frames; f++ {
			t := float64(f) / float64(frames)
			samples = append(samples, Sample{
				Time:  Bezier(a.Time, out, in, b.Time, t),
				Value: Bezier(a.Value, a.HandleOut.Y, b.HandleIn.Y, b.Value, t),
			})
		}
	}
	return samples
}

func clampOffset(d, limit float64) float64 {
	return math.Max(0, math.Min(d, limit))
}

// Nearest returns the sample closest in time to localTime. The first sample
// wins a tie. ok is false when the table is empty.
func Nearest(samples []Sample, localTime float64) (s Sample, ok bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}

	best := 0
	bestDist := math.Abs(samples[0].Time - localTime)
	for i := 1; i < len(samples); i++ {
		if d := math.Abs(samples[i].Time - localTime); d < bestDist {
			best, bestDist = i, d
		}
	}
	return samples[best], true
}
