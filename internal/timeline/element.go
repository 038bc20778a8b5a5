// Package timeline defines the timeline elements the compositor draws and
// the snapshot format the editor hands over.
package timeline

// Kind tags the concrete type of an Element.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindGif   Kind = "gif"
	KindText  Kind = "text"
	KindShape Kind = "shape"
	KindAudio Kind = "audio"
)

// Point is a position in frame pixels.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Base holds the fields shared by every element. Times are milliseconds on
// the timeline.
type Base struct {
	ID        string  `yaml:"id"`
	Priority  int     `yaml:"priority"`
	StartTime float64 `yaml:"start_time"`
	Duration  float64 `yaml:"duration"`
	Location  Point   `yaml:"location"`
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Rotation  float64 `yaml:"rotation"` // degrees
	Opacity   float64 `yaml:"opacity"`  // 0-100
	Filetype  string  `yaml:"filetype,omitempty"`
}

// Element is one of Image, Video, Gif, Text, Shape or Audio.
type Element interface {
	Kind() Kind
	Common() *Base
}

// Dynamic is implemented by elements whose playback rate scales their
// on-screen duration.
type Dynamic interface {
	PlaybackSpeed() float64
}

// Trim is the used range of a media source, relative to the element start.
type Trim struct {
	StartTime float64 `yaml:"start_time"`
	EndTime   float64 `yaml:"end_time"`
}

// FilterSpec names a shader filter and its raw "key=value:key=value" string.
type FilterSpec struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Filter is the filter stack of a video element.
type Filter struct {
	Enable bool         `yaml:"enable"`
	List   []FilterSpec `yaml:"list"`
}

type Image struct {
	Base `yaml:",inline"`
	Path string `yaml:"path"`
}

type Video struct {
	Base   `yaml:",inline"`
	Path   string  `yaml:"path"`
	Trim   Trim    `yaml:"trim"`
	Speed  float64 `yaml:"speed"`
	Filter Filter  `yaml:"filter"`
}

type Gif struct {
	Base  `yaml:",inline"`
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
}

// Outline is the stroke drawn around text glyphs.
type Outline struct {
	Enable bool    `yaml:"enable"`
	Color  string  `yaml:"color"`
	Size   float64 `yaml:"size"`
}

// Background is the box drawn behind text.
type Background struct {
	Enable bool   `yaml:"enable"`
	Color  string `yaml:"color"`
}

// Align is the horizontal alignment of text lines.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

type Text struct {
	Base       `yaml:",inline"`
	Text       string     `yaml:"text"`
	FontName   string     `yaml:"font_name"`
	FontSize   float64    `yaml:"font_size"`
	FontWeight string     `yaml:"font_weight"` // "bold" or normal
	FontStyle  string     `yaml:"font_style"`  // "italic" or normal
	TextColor  string     `yaml:"text_color"`
	Align      Align      `yaml:"align"`
	Outline    Outline    `yaml:"outline"`
	Background Background `yaml:"background"`
}

type Shape struct {
	Base           `yaml:",inline"`
	Points         []Point `yaml:"points"`
	FillColor      string  `yaml:"fill_color"`
	OriginalWidth  float64 `yaml:"original_width"`
	OriginalHeight float64 `yaml:"original_height"`
}

type Audio struct {
	Base  `yaml:",inline"`
	Path  string  `yaml:"path"`
	Trim  Trim    `yaml:"trim"`
	Speed float64 `yaml:"speed"`
}

func (e *Image) Kind() Kind { return KindImage }
func (e *Video) Kind() Kind { return KindVideo }
func (e *Gif) Kind() Kind   { return KindGif }
func (e *Text) Kind() Kind  { return KindText }
func (e *Shape) Kind() Kind { return KindShape }
func (e *Audio) Kind() Kind { return KindAudio }

func (e *Image) Common() *Base { return &e.Base }
func (e *Video) Common() *Base { return &e.Base }
func (e *Gif) Common() *Base   { return &e.Base }
func (e *Text) Common() *Base  { return &e.Base }
func (e *Shape) Common() *Base { return &e.Base }
func (e *Audio) Common() *Base { return &e.Base }

func (e *Video) PlaybackSpeed() float64 { return speedOrOne(e.Speed) }
func (e *Gif) PlaybackSpeed() float64   { return speedOrOne(e.Speed) }
func (e *Audio) PlaybackSpeed() float64 { return speedOrOne(e.Speed) }

func speedOrOne(s float64) float64 {
	if s <= 0 {
		return 1
	}
	return s
}

// Center returns the geometric centre of the element box.
func (b *Base) Center() Point {
	return Point{X: b.Location.X + b.Width/2, Y: b.Location.Y + b.Height/2}
}
