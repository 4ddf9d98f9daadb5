// Package saliency provides the crop-selection capability used by the
// smart-crop variant. The scoring itself belongs to the backing engine; this
// package only normalises its answer to the exact requested size.
package saliency

import (
	"fmt"
	"image"

	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
	"github.com/rs/zerolog/log"
)

// Cropper returns the best crop rectangle of exactly width x height inside img.
// When several candidates score equally, the engine's top candidate wins.
type Cropper interface {
	BestCrop(img image.Image, width, height int) (image.Rectangle, error)
}

// Smart is a Cropper backed by github.com/muesli/smartcrop.
type Smart struct {
	analyzer smartcrop.Analyzer
}

var _ Cropper = (*Smart)(nil)

// NewSmart creates a Cropper that scores candidates with smartcrop's
// default analyzer, downsampling through nfnt/resize.
func NewSmart() *Smart {
	return &Smart{analyzer: smartcrop.NewAnalyzer(nfnt.NewDefaultResizer())}
}

// BestCrop asks smartcrop for the top crop with the requested aspect ratio
// and re-centres a rectangle of exactly width x height on it.
func (s *Smart) BestCrop(img image.Image, width, height int) (image.Rectangle, error) {
	bounds := img.Bounds()
	if width <= 0 || height <= 0 || width > bounds.Dx() || height > bounds.Dy() {
		return image.Rectangle{}, fmt.Errorf("crop %dx%d does not fit image %dx%d", width, height, bounds.Dx(), bounds.Dy())
	}

	top, err := s.analyzer.FindBestCrop(img, width, height)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("smartcrop failed: %w", err)
	}

	rect := CenterOn(top, width, height, bounds)

	log.Debug().
		Str("candidate", top.String()).
		Str("crop", rect.String()).
		Msg("Saliency crop selected")

	return rect, nil
}

// CenterOn returns a width x height rectangle centred on the centre of
// candidate, shifted as needed to stay inside bounds. The caller guarantees
// that the size fits in bounds.
func CenterOn(candidate image.Rectangle, width, height int, bounds image.Rectangle) image.Rectangle {
	cx := candidate.Min.X + candidate.Dx()/2
	cy := candidate.Min.Y + candidate.Dy()/2

	x := clamp(cx-width/2, bounds.Min.X, bounds.Max.X-width)
	y := clamp(cy-height/2, bounds.Min.Y, bounds.Max.Y-height)

	return image.Rect(x, y, x+width, y+height)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
