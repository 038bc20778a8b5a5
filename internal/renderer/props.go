package renderer

import (
	"github.com/ivlev/timeline2video/internal/curve"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// LayerState is the resolved placement of an element at one instant.
// X, Y, Width and Height describe the unscaled box; Scale is applied around
// its centre, then Rotation.
type LayerState struct {
	X, Y          float64
	Width, Height float64
	Opacity       float64 // 0..1
	Scale         float64
	Rotation      float64 // degrees
}

// Center returns the centre of the unscaled box.
func (s LayerState) Center() (float64, float64) {
	return s.X + s.Width/2, s.Y + s.Height/2
}

// ResolveState reads the static fields of e and overrides them with every
// active animation channel that has a sample at t.
func ResolveState(store *curve.Store, e timeline.Element, t float64) LayerState {
	b := e.Common()
	st := LayerState{
		X:        b.Location.X,
		Y:        b.Location.Y,
		Width:    b.Width,
		Height:   b.Height,
		Opacity:  b.Opacity / 100,
		Scale:    1,
		Rotation: b.Rotation,
	}
	if store == nil {
		return clampState(st)
	}

	local := t - b.StartTime
	lookup := func(p curve.Property, a curve.Axis) (float64, bool) {
		s, ok := store.Lookup(b.ID, p, a, local)
		return s.Value, ok
	}

	if v, ok := lookup(curve.Position, curve.AxisX); ok {
		st.X = v
	}
	if v, ok := lookup(curve.Position, curve.AxisY); ok {
		st.Y = v
	}
	if v, ok := lookup(curve.Opacity, curve.AxisValue); ok {
		st.Opacity = v / 100
	}
	if v, ok := lookup(curve.Scale, curve.AxisValue); ok {
		st.Scale = v
	}
	if v, ok := lookup(curve.Rotation, curve.AxisValue); ok {
		st.Rotation = v
	}
	return clampState(st)
}

func clampState(st LayerState) LayerState {
	st.Opacity = clamp(st.Opacity, 0, 1)
	if st.Scale < 0 {
		st.Scale = 0
	}
	return st
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
