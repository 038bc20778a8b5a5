package effects

import (
	"strconv"
	"strings"
)

// Params holds the numeric arguments of a filter.
type Params map[string]float64

// ParseValue reads "key=value:key=value". Malformed pairs are skipped and
// non-numeric values read as 0.
func ParseValue(s string) Params {
	p := make(Params)
	for _, pair := range strings.Split(s, ":") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			f = 0
		}
		p[key] = f
	}
	return p
}

// Get returns the value for key or 0 when absent.
func (p Params) Get(key string) float64 {
	return p[key]
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}
