package curve

import (
	"math"
	"testing"
)

func times(points []ControlPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Time
	}
	return out
}

func TestAddPointOrdering(t *testing.T) {
	orders := [][]float64{
		{10, 0, 20},
		{0, 10, 20},
		{20, 10, 0},
		{20, 0, 10},
	}

	for _, order := range orders {
		s := NewStore()
		for _, x := range order {
			if err := s.AddPoint("el", Opacity, AxisValue, x, x*2); err != nil {
				t.Fatalf("AddPoint: %v", err)
			}
		}

		got := times(s.Points("el", Opacity, AxisValue))
		want := []float64{0, 10, 20}
		if len(got) != len(want) {
			t.Fatalf("order %v: expected %v, got %v", order, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("order %v: expected %v, got %v", order, want, got)
				break
			}
		}
	}
}

func TestAddPointReplace(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Scale, AxisValue, 0, 1)
	s.AddPoint("el", Scale, AxisValue, 100, 2)
	s.AddPoint("el", Scale, AxisValue, 100, 3)

	pts := s.Points("el", Scale, AxisValue)
	if len(pts) != 2 {
		t.Fatalf("Expected 2 points after replace, got %d", len(pts))
	}
	if pts[1].Value != 3 {
		t.Errorf("Expected replaced value 3, got %f", pts[1].Value)
	}
	if pts[1].HandleIn.X != 100-TangentDistance || pts[1].HandleOut.X != 100+TangentDistance {
		t.Errorf("Expected symmetric handles, got in=%v out=%v", pts[1].HandleIn, pts[1].HandleOut)
	}
}

func TestFirstPointHandlesCollapse(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Rotation, AxisValue, 40, 90)

	p := s.Points("el", Rotation, AxisValue)[0]
	want := Vec2{X: 40, Y: 90}
	if p.HandleIn != want || p.HandleOut != want {
		t.Errorf("Expected handles on the anchor, got in=%v out=%v", p.HandleIn, p.HandleOut)
	}
}

func TestAddPointDoesNotActivate(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Opacity, AxisValue, 0, 50)
	if s.Active("el", Opacity) {
		t.Error("AddPoint must not activate the channel")
	}
	if _, ok := s.Lookup("el", Opacity, AxisValue, 0); ok {
		t.Error("Lookup on an inactive channel must report no sample")
	}

	s.SetActive("el", Opacity, true)
	if _, ok := s.Lookup("el", Opacity, AxisValue, 0); !ok {
		t.Error("Lookup on an active channel should find the sample")
	}
}

func TestAddPointUnknownProperty(t *testing.T) {
	s := NewStore()
	if err := s.AddPoint("el", Property("blur"), AxisValue, 0, 1); err == nil {
		t.Error("Expected error for unknown property")
	}
}

func TestBezierEndpoints(t *testing.T) {
	cases := []struct{ p0, c0, c1, p1 float64 }{
		{0, 0, 0, 0},
		{1, 5, -3, 2},
		{-7.25, 100, 0.3, 1e6},
		{0.1, 0.2, 0.3, 0.7},
	}
	for _, c := range cases {
		if got := Bezier(c.p0, c.c0, c.c1, c.p1, 0); got != c.p0 {
			t.Errorf("B(0) = %v, want %v", got, c.p0)
		}
		if got := Bezier(c.p0, c.c0, c.c1, c.p1, 1); got != c.p1 {
			t.Errorf("B(1) = %v, want %v", got, c.p1)
		}
	}
}

func TestInterpolateSampleCounts(t *testing.T) {
	tests := []struct {
		name string
		gap  float64
		want int
	}{
		{"600ms", 600, int(math.Round(600/(1000.0/60))) + 1},
		{"3ms", 3, 0},
		{"threshold", DecimationGap, 0},
		{"just above threshold", 6, 2},
		{"one second", 1000, 61},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.AddPoint("el", Opacity, AxisValue, 0, 0)
			s.AddPoint("el", Opacity, AxisValue, tt.gap, 100)

			got := len(s.Samples("el", Opacity, AxisValue))
			if got != tt.want {
				t.Errorf("gap %.0fms: expected %d samples, got %d", tt.gap, tt.want, got)
			}
		})
	}
}

func TestInterpolateEndpointsExact(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Opacity, AxisValue, 0, 10)
	s.AddPoint("el", Opacity, AxisValue, 600, 80)

	samples := s.Samples("el", Opacity, AxisValue)
	first, last := samples[0], samples[len(samples)-1]
	if first.Time != 0 || first.Value != 10 {
		t.Errorf("First sample %+v, want (0, 10)", first)
	}
	if last.Time != 600 || last.Value != 80 {
		t.Errorf("Last sample %+v, want (600, 80)", last)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Time < samples[i-1].Time {
			t.Fatalf("Samples not ordered at %d: %v then %v", i, samples[i-1], samples[i])
		}
	}
}

func TestInterpolateCloseKeyframes(t *testing.T) {
	tests := []struct {
		name  string
		times []float64
	}{
		{"30ms apart", []float64{0, 30, 60}},
		{"40ms apart", []float64{0, 40, 80}},
		{"mixed", []float64{0, 20, 400, 430}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for _, x := range tt.times {
				s.AddPoint("el", Opacity, AxisValue, x, x/2)
			}

			samples := s.Samples("el", Opacity, AxisValue)
			first, last := tt.times[0], tt.times[len(tt.times)-1]
			for i, smp := range samples {
				if smp.Time < first || smp.Time > last {
					t.Errorf("sample %d at %.3f outside [%.0f, %.0f]", i, smp.Time, first, last)
				}
				if i > 0 && smp.Time < samples[i-1].Time {
					t.Fatalf("sample %d time %.3f before previous %.3f", i, smp.Time, samples[i-1].Time)
				}
			}
		})
	}
}

func TestSinglePointTable(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Opacity, AxisValue, 0, 50)

	samples := s.Samples("el", Opacity, AxisValue)
	if len(samples) != 1 {
		t.Fatalf("Expected 1 sample, got %d", len(samples))
	}
	if samples[0] != (Sample{Time: 0, Value: 50}) {
		t.Errorf("Expected (0, 50), got %+v", samples[0])
	}
}

func TestNearest(t *testing.T) {
	table := []Sample{{Time: 0, Value: 5}, {Time: 100, Value: 9}}

	tests := []struct {
		query float64
		want  float64
	}{
		{80, 9},
		{20, 5},
		{50, 5}, // tie, first found
		{-30, 5},
		{400, 9},
	}
	for _, tt := range tests {
		got, ok := Nearest(table, tt.query)
		if !ok {
			t.Fatalf("query %.0f: no sample", tt.query)
		}
		if got.Value != tt.want {
			t.Errorf("query %.0f: expected %.0f, got %.0f", tt.query, tt.want, got.Value)
		}
	}

	if _, ok := Nearest(nil, 10); ok {
		t.Error("Expected no sample from an empty table")
	}
}

func TestRemovePoint(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Position, AxisX, 0, 0)
	s.AddPoint("el", Position, AxisX, 500, 100)
	s.AddPoint("el", Position, AxisX, 1000, 200)

	if !s.RemovePoint("el", Position, AxisX, 500) {
		t.Fatal("Expected point at 500 to be removed")
	}
	if s.RemovePoint("el", Position, AxisX, 500) {
		t.Error("Second removal should report false")
	}

	got := times(s.Points("el", Position, AxisX))
	if len(got) != 2 || got[0] != 0 || got[1] != 1000 {
		t.Errorf("Expected [0 1000], got %v", got)
	}

	s.RemovePoint("el", Position, AxisX, 1000)
	samples := s.Samples("el", Position, AxisX)
	if len(samples) != 1 {
		t.Errorf("Expected single sample after removals, got %d", len(samples))
	}
}

func TestRemoveElement(t *testing.T) {
	s := NewStore()
	s.AddPoint("el", Opacity, AxisValue, 0, 50)
	s.SetActive("el", Opacity, true)
	s.RemoveElement("el")

	if s.Active("el", Opacity) {
		t.Error("Channel should be gone after RemoveElement")
	}
	if pts := s.Points("el", Opacity, AxisValue); len(pts) != 0 {
		t.Errorf("Expected no points, got %d", len(pts))
	}
}
