package timeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivlev/timeline2video/internal/curve"
)

func TestVideoTrimVisibility(t *testing.T) {
	v := &Video{
		Base:  Base{ID: "v", StartTime: 0, Duration: 5000},
		Trim:  Trim{StartTime: 1000, EndTime: 4000},
		Speed: 1,
	}

	tests := []struct {
		t    float64
		want bool
	}{
		{2000, true},
		{1000, true},
		{500, false},
		{4000, false},
		{4500, false},
	}
	for _, tt := range tests {
		if got := Visible(v, tt.t); got != tt.want {
			t.Errorf("Visible at %.0f = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestVideoTrimStartOnly(t *testing.T) {
	v := &Video{
		Base:  Base{ID: "v", StartTime: 200, Duration: 3000},
		Trim:  Trim{StartTime: 1000},
		Speed: 1,
	}

	tests := []struct {
		t    float64
		want bool
	}{
		{500, false},
		{1199, false},
		{1200, true},
		{3100, true},
		{3200, false},
	}
	for _, tt := range tests {
		if got := Visible(v, tt.t); got != tt.want {
			t.Errorf("Visible at %.0f = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestVisibilityWindowSpeed(t *testing.T) {
	tests := []struct {
		name string
		elem Element
		want Window
	}{
		{"image", &Image{Base: Base{StartTime: 100, Duration: 1000}}, Window{100, 1100}},
		{"text", &Text{Base: Base{StartTime: 0, Duration: 500}}, Window{0, 500}},
		{"video 2x", &Video{Base: Base{StartTime: 0, Duration: 4000}, Speed: 2}, Window{0, 2000}},
		{"gif half", &Gif{Base: Base{StartTime: 1000, Duration: 1000}, Speed: 0.5}, Window{1000, 3000}},
		{"gif no speed", &Gif{Base: Base{StartTime: 0, Duration: 300}}, Window{0, 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VisibilityWindow(tt.elem); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAudioNeverVisible(t *testing.T) {
	a := &Audio{Base: Base{StartTime: 0, Duration: 10000}}
	if Visible(a, 10) {
		t.Error("Audio must not be composited")
	}
}

func TestSortByPriorityStable(t *testing.T) {
	elems := []Element{
		&Image{Base: Base{ID: "a", Priority: 5}},
		&Text{Base: Base{ID: "b", Priority: 1}},
		&Shape{Base: Base{ID: "c", Priority: 5}},
		&Image{Base: Base{ID: "d", Priority: -2}},
		&Gif{Base: Base{ID: "e", Priority: 1}},
	}

	sorted := SortByPriority(elems)
	want := []string{"d", "b", "e", "a", "c"}
	for i, e := range sorted {
		if e.Common().ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], e.Common().ID)
		}
	}
	if elems[0].Common().ID != "a" {
		t.Error("SortByPriority must not reorder its input")
	}
}

func TestPresentationTime(t *testing.T) {
	v := &Video{Base: Base{StartTime: 1000}, Speed: 2}
	if got := PresentationTime(v, 2500); got != 3 {
		t.Errorf("expected 3s, got %f", got)
	}
}

const sampleSnapshot = `
version: "1.0"
width: 640
height: 360
elements:
  - type: image
    id: bg
    priority: 0
    start_time: 0
    duration: 2000
    width: 640
    height: 360
    opacity: 100
    path: bg.png
  - type: video
    id: clip
    priority: 2
    start_time: 500
    duration: 3000
    width: 320
    height: 180
    opacity: 100
    path: clip.mp4
    speed: 1
    trim: {start_time: 0, end_time: 3000}
    filter:
      enable: true
      list:
        - {name: chromakey, value: "r=0:g=255:b=0"}
  - type: text
    id: title
    priority: 3
    duration: 1000
    text: hello world
    font_size: 24
    align: center
  - type: shape
    id: tri
    priority: 1
    duration: 1000
    points: [{x: 0, y: 0}, {x: 10, y: 0}, {x: 5, y: 10}]
    fill_color: "#ff0000"
animations:
  bg:
    opacity:
      active: true
      points:
        value: [{time: 0, value: 0}, {time: 600, value: 100}]
`

func TestParseSnapshot(t *testing.T) {
	snap, err := ParseSnapshot([]byte(sampleSnapshot))
	if err != nil {
		t.Fatalf("ParseSnapshot failed: %v", err)
	}

	if len(snap.Elements) != 4 {
		t.Fatalf("Expected 4 elements, got %d", len(snap.Elements))
	}

	v, ok := snap.Elements[1].(*Video)
	if !ok {
		t.Fatalf("Expected *Video, got %T", snap.Elements[1])
	}
	if v.Trim.EndTime != 3000 || !v.Filter.Enable || v.Filter.List[0].Name != "chromakey" {
		t.Errorf("Video fields not decoded: %+v", v)
	}

	if s := snap.Elements[3].(*Shape); len(s.Points) != 3 {
		t.Errorf("Expected 3 shape points, got %d", len(s.Points))
	}

	if d := snap.TotalDuration(); d != 3500 {
		t.Errorf("Expected derived duration 3500, got %f", d)
	}

	store, err := snap.BuildCurves()
	if err != nil {
		t.Fatalf("BuildCurves failed: %v", err)
	}
	if !store.Active("bg", curve.Opacity) {
		t.Error("Expected bg opacity channel to be active")
	}
	if n := len(store.Samples("bg", curve.Opacity, curve.AxisValue)); n != 37 {
		t.Errorf("Expected 37 samples, got %d", n)
	}
}

func TestParseSnapshotErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", "elements:\n  - {type: hologram, id: x}\n"},
		{"missing id", "elements:\n  - {type: image}\n"},
		{"duplicate id", "elements:\n  - {type: image, id: a}\n  - {type: text, id: a}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSnapshot([]byte(tt.doc)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestSnapshotWriteRead(t *testing.T) {
	snap, err := ParseSnapshot([]byte(sampleSnapshot))
	if err != nil {
		t.Fatalf("ParseSnapshot failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snap.yaml")
	if err := WriteSnapshot(snap, path); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	read, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if len(read.Elements) != len(snap.Elements) {
		t.Fatalf("Element count mismatch: expected %d, got %d", len(snap.Elements), len(read.Elements))
	}
	for i := range snap.Elements {
		if read.Elements[i].Kind() != snap.Elements[i].Kind() {
			t.Errorf("element %d: kind %s, want %s", i, read.Elements[i].Kind(), snap.Elements[i].Kind())
		}
	}
}

func TestFindLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	files := []string{"a.yaml", "b.yaml", "c.yml"}
	for i, name := range files {
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte("elements: []\n"), 0644)
		mod := time.Now().Add(time.Duration(i) * time.Hour)
		os.Chtimes(p, mod, mod)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	latest, err := FindLatestSnapshot(dir)
	if err != nil {
		t.Fatalf("FindLatestSnapshot failed: %v", err)
	}
	if filepath.Base(latest) != "c.yml" {
		t.Errorf("Expected c.yml, got %s", latest)
	}

	if _, err := FindLatestSnapshot(t.TempDir()); err == nil {
		t.Error("Expected error for empty directory")
	}
}
