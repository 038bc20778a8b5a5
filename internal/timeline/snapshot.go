package timeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/timeline2video/internal/curve"
)

// Snapshot is an immutable view of the timeline handed over by the editor.
type Snapshot struct {
	Version    string                                  `yaml:"version"`
	Width      int                                     `yaml:"width"`
	Height     int                                     `yaml:"height"`
	Duration   float64                                 `yaml:"duration,omitempty"` // ms, derived from elements when zero
	Background string                                  `yaml:"background,omitempty"`
	Elements   Elements                                `yaml:"elements"`
	Animations map[string]map[curve.Property]Animation `yaml:"animations,omitempty"`
}

// Animation is the stored form of one animation channel.
type Animation struct {
	Active bool                      `yaml:"active"`
	Points map[curve.Axis][]Keyframe `yaml:"points"`
}

// Keyframe is a stored control point. Handles are rebuilt by the curve
// builder on load.
type Keyframe struct {
	Time  float64 `yaml:"time"`
	Value float64 `yaml:"value"`
}

// Elements is a list of elements encoded with a "type" discriminator.
type Elements []Element

type tagged[T any] struct {
	Type Kind `yaml:"type"`
	Elem T    `yaml:",inline"`
}

// UnmarshalYAML decodes each entry into the concrete type named by "type".
func (l *Elements) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("elements: expected a sequence, got node kind %d", value.Kind)
	}

	out := make(Elements, 0, len(value.Content))
	for i, node := range value.Content {
		var head struct {
			Type Kind `yaml:"type"`
		}
		if err := node.Decode(&head); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}

		var (
			e   Element
			err error
		)
		switch head.Type {
		case KindImage:
			e, err = decodeTagged[Image](node)
		case KindVideo:
			e, err = decodeTagged[Video](node)
		case KindGif:
			e, err = decodeTagged[Gif](node)
		case KindText:
			e, err = decodeTagged[Text](node)
		case KindShape:
			e, err = decodeTagged[Shape](node)
		case KindAudio:
			e, err = decodeTagged[Audio](node)
		default:
			return fmt.Errorf("element %d: unknown type %q", i, head.Type)
		}
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, e)
	}

	*l = out
	return nil
}

func decodeTagged[T any, P interface {
	*T
	Element
}](node *yaml.Node) (Element, error) {
	var t tagged[T]
	if err := node.Decode(&t); err != nil {
		return nil, err
	}
	return P(&t.Elem), nil
}

// MarshalYAML writes every element with its "type" discriminator.
func (l Elements) MarshalYAML() (interface{}, error) {
	out := make([]interface{}, 0, len(l))
	for _, e := range l {
		switch v := e.(type) {
		case *Image:
			out = append(out, tagged[Image]{Type: KindImage, Elem: *v})
		case *Video:
			out = append(out, tagged[Video]{Type: KindVideo, Elem: *v})
		case *Gif:
			out = append(out, tagged[Gif]{Type: KindGif, Elem: *v})
		case *Text:
			out = append(out, tagged[Text]{Type: KindText, Elem: *v})
		case *Shape:
			out = append(out, tagged[Shape]{Type: KindShape, Elem: *v})
		case *Audio:
			out = append(out, tagged[Audio]{Type: KindAudio, Elem: *v})
		default:
			return nil, fmt.Errorf("unsupported element %T", e)
		}
	}
	return out, nil
}

// TotalDuration returns the snapshot length in milliseconds: the explicit
// Duration when set, otherwise the end of the last visibility window.
func (s *Snapshot) TotalDuration() float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	end := 0.0
	for _, e := range s.Elements {
		if w := VisibilityWindow(e); w.End > end {
			end = w.End
		}
	}
	return end
}

// Find returns the element with the given id.
func (s *Snapshot) Find(id string) (Element, bool) {
	for _, e := range s.Elements {
		if e.Common().ID == id {
			return e, true
		}
	}
	return nil, false
}

// BuildCurves replays the stored animations through the curve builder.
func (s *Snapshot) BuildCurves() (*curve.Store, error) {
	store := curve.NewStore()
	for id, props := range s.Animations {
		for prop, anim := range props {
			for axis, kfs := range anim.Points {
				for _, kf := range kfs {
					if err := store.AddPoint(id, prop, axis, kf.Time, kf.Value); err != nil {
						return nil, fmt.Errorf("animation %s/%s: %w", id, prop, err)
					}
				}
			}
			store.SetActive(id, prop, anim.Active)
		}
	}
	return store, nil
}

// WriteSnapshot writes a snapshot to a YAML file.
func WriteSnapshot(s *Snapshot, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadSnapshot reads a snapshot from a YAML file.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes a snapshot and checks that element ids are unique.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(s.Elements))
	for _, e := range s.Elements {
		id := e.Common().ID
		if id == "" {
			return nil, fmt.Errorf("%s element without id", e.Kind())
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate element id %q", id)
		}
		seen[id] = true
	}
	return &s, nil
}
