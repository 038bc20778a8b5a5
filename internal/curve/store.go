// Package curve stores per-element animation curves and resamples them into
// frame-indexed lookup tables.
package curve

import (
	"fmt"
	"sort"
	"sync"
)

// Property names an animatable property of an element.
type Property string

const (
	Position Property = "position"
	Opacity  Property = "opacity"
	Scale    Property = "scale"
	Rotation Property = "rotation"
)

// Axis selects one dimension of a property. Scalar properties use AxisValue.
type Axis string

const (
	AxisX     Axis = "x"
	AxisY     Axis = "y"
	AxisValue Axis = "value"
)

// Axes returns the axes a property animates.
func (p Property) Axes() []Axis {
	if p == Position {
		return []Axis{AxisX, AxisY}
	}
	return []Axis{AxisValue}
}

// Valid reports whether p is a known property.
func (p Property) Valid() bool {
	switch p {
	case Position, Opacity, Scale, Rotation:
		return true
	}
	return false
}

// Channel is the animation state of one property of one element.
type Channel struct {
	Active bool
	Curves map[Axis]*Curve
}

func newChannel() *Channel {
	return &Channel{Curves: make(map[Axis]*Curve)}
}

func (c *Channel) curve(axis Axis) *Curve {
	cv, ok := c.Curves[axis]
	if !ok {
		cv = &Curve{}
		c.Curves[axis] = cv
	}
	return cv
}

// Store holds every channel of every element. It is safe for concurrent use;
// the sample tables are rebuilt under the write lock so readers never see a
// table that disagrees with its control points.
type Store struct {
	mu       sync.RWMutex
	elements map[string]map[Property]*Channel
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{elements: make(map[string]map[Property]*Channel)}
}

func (s *Store) channel(elementID string, prop Property) *Channel {
	props, ok := s.elements[elementID]
	if !ok {
		props = make(map[Property]*Channel)
		s.elements[elementID] = props
	}
	ch, ok := props[prop]
	if !ok {
		ch = newChannel()
		props[prop] = ch
	}
	return ch
}

// AddPoint inserts a control point, replacing an existing point at the same
// time, and regenerates the sample table of that axis. It does not change
// the channel's Active flag.
func (s *Store) AddPoint(elementID string, prop Property, axis Axis, time, value float64) error {
	if !prop.Valid() {
		return fmt.Errorf("unknown property %q", prop)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cv := s.channel(elementID, prop).curve(axis)
	cv.Points, _ = insert(cv.Points, time, value)
	cv.Samples = Interpolate(cv.Points)
	return nil
}

// RemovePoint deletes the control point at time and regenerates the table.
// It reports whether a point was removed.
func (s *Store) RemovePoint(elementID string, prop Property, axis Axis, time float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.elements[elementID][prop]
	if !ok {
		return false
	}
	cv, ok := ch.Curves[axis]
	if !ok {
		return false
	}

	i := sort.Search(len(cv.Points), func(i int) bool { return cv.Points[i].Time >= time })
	if i == len(cv.Points) || cv.Points[i].Time != time {
		return false
	}
	cv.Points = append(cv.Points[:i], cv.Points[i+1:]...)
	if len(cv.Points) == 1 {
		p := cv.Points[0]
		cv.Points[0] = anchor(p.Time, p.Value)
	}
	cv.Samples = Interpolate(cv.Points)
	return true
}

// SetActive switches a channel between its animated and static value.
func (s *Store) SetActive(elementID string, prop Property, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel(elementID, prop).Active = active
}

// Active reports whether the channel of an element is animated.
func (s *Store) Active(elementID string, prop Property) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.elements[elementID][prop]
	return ok && ch.Active
}

// RemoveElement drops every channel of an element.
func (s *Store) RemoveElement(elementID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, elementID)
}

// Points returns a copy of the control points of one axis.
func (s *Store) Points(elementID string, prop Property, axis Axis) []ControlPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.elements[elementID][prop]
	if !ok {
		return nil
	}
	cv, ok := ch.Curves[axis]
	if !ok {
		return nil
	}
	return append([]ControlPoint(nil), cv.Points...)
}

// Samples returns a copy of the sample table of one axis.
func (s *Store) Samples(elementID string, prop Property, axis Axis) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.elements[elementID][prop]
	if !ok {
		return nil
	}
	cv, ok := ch.Curves[axis]
	if !ok {
		return nil
	}
	return append([]Sample(nil), cv.Samples...)
}

// Lookup resolves an animated value at localTime (ms since element start).
// ok is false when the channel is inactive or has no samples yet; callers
// then fall back to the element's static value.
func (s *Store) Lookup(elementID string, prop Property, axis Axis, localTime float64) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.elements[elementID][prop]
	if !ok || !ch.Active {
		return Sample{}, false
	}
	cv, ok := ch.Curves[axis]
	if !ok {
		return Sample{}, false
	}
	return Nearest(cv.Samples, localTime)
}
