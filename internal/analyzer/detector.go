// Package analyzer finds regions of interest in still images: text blocks,
// figures and headings stand out as areas of dense local contrast.
package analyzer

import (
	"fmt"
	"image"
)

// Block is a detected region in source image pixels.
type Block struct {
	Rect       image.Rectangle
	Confidence float64 // 0.0-1.0
}

type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// NewDetector returns the detector registered under variant.
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	}
	return nil, fmt.Errorf("unknown detector variant: %s", variant)
}
