package renderer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultFamily is used for text whose font name is unknown.
const DefaultFamily = "Go"

type family struct {
	regular, bold, italic, boldItalic *text.FontSource
}

func (f *family) pick(bold, italic bool) *text.FontSource {
	switch {
	case bold && italic:
		return f.boldItalic
	case bold:
		return f.bold
	case italic:
		return f.italic
	}
	return f.regular
}

// FontSet maps family names to parsed fonts.
type FontSet struct {
	mu       sync.RWMutex
	families map[string]*family
}

// NewFontSet returns a set holding the Go and Go Mono families.
func NewFontSet() (*FontSet, error) {
	fs := &FontSet{families: make(map[string]*family)}
	if err := fs.Register(DefaultFamily, goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF); err != nil {
		return nil, err
	}
	if err := fs.Register("Go Mono", gomono.TTF, gomonobold.TTF, gomonoitalic.TTF, gomonobolditalic.TTF); err != nil {
		return nil, err
	}
	return fs, nil
}

// Register parses the four styles of a family. Names match case-insensitively.
func (fs *FontSet) Register(name string, regular, bold, italic, boldItalic []byte) error {
	var f family
	for _, s := range []struct {
		dst  **text.FontSource
		data []byte
	}{
		{&f.regular, regular},
		{&f.bold, bold},
		{&f.italic, italic},
		{&f.boldItalic, boldItalic},
	} {
		src, err := text.NewFontSource(s.data)
		if err != nil {
			return fmt.Errorf("font %s: %w", name, err)
		}
		*s.dst = src
	}

	fs.mu.Lock()
	fs.families[strings.ToLower(name)] = &f
	fs.mu.Unlock()
	return nil
}

// Face returns a face for the family, weight, style and size.
func (fs *FontSet) Face(name string, bold, italic bool, size float64) text.Face {
	fs.mu.RLock()
	f, ok := fs.families[strings.ToLower(name)]
	if !ok {
		f = fs.families[strings.ToLower(DefaultFamily)]
	}
	fs.mu.RUnlock()
	return f.pick(bold, italic).Face(size)
}
