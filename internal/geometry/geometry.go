// Package geometry computes the target sizes, paddings and crop shapes used
// to derive output variants from a source photograph.
//
// Everything here is pure arithmetic on image dimensions. Callers validate
// dimensions once with Dimensions.Validate and then rely on the invariants
// documented on each function.
package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when an image reports a zero or negative
// width or height, which means its metadata could not be determined.
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// Dimensions is the pixel size of an image.
type Dimensions struct {
	Width  int
	Height int
}

// Validate fails unless both sides are strictly positive.
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, d.Width, d.Height)
	}
	return nil
}

// LongestSide returns max(width, height).
func (d Dimensions) LongestSide() int {
	return max(d.Width, d.Height)
}

// SmallestSide returns min(width, height).
func (d Dimensions) SmallestSide() int {
	return min(d.Width, d.Height)
}

// IsLandscapeOrSquare reports whether width >= height.
func (d Dimensions) IsLandscapeOrSquare() bool {
	return d.Width >= d.Height
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// ResizeDimensions returns the size of src after constraining its longest
// side to target without enlargement.
//
// When src already fits, src is returned unchanged. Otherwise the longer axis
// becomes exactly target and the shorter axis is scaled proportionally with
// round-half-up, never below one pixel. Square sources scale both axes to target.
func ResizeDimensions(src Dimensions, target int) (Dimensions, error) {
	if err := src.Validate(); err != nil {
		return Dimensions{}, err
	}
	if target <= 0 {
		return Dimensions{}, fmt.Errorf("invalid target longest side: %d", target)
	}
	if src.LongestSide() <= target {
		return src, nil
	}

	if src.Width > src.Height {
		return Dimensions{Width: target, Height: scale(src.Height, target, src.Width)}, nil
	}
	return Dimensions{Width: scale(src.Width, target, src.Height), Height: target}, nil
}

// scale returns round(side * target / long) clamped to at least 1.
func scale(side, target, long int) int {
	v := (side*target + long/2) / long
	if v < 1 {
		return 1
	}
	return v
}

// Padding holds the insets that extend an image to a square canvas.
type Padding struct {
	Top    int
	Bottom int
	Left   int
	Right  int
}

// SquarePadding returns the insets that turn d into a square of side
// d.LongestSide(). Odd remainders put the extra pixel on the bottom or right
// edge, so content sits at most one pixel off centre. The longer axis always
// receives zero padding.
func SquarePadding(d Dimensions) (Padding, error) {
	if err := d.Validate(); err != nil {
		return Padding{}, err
	}
	side := d.LongestSide()
	dh := side - d.Height
	dw := side - d.Width
	return Padding{
		Top:    dh / 2,
		Bottom: dh - dh/2,
		Left:   dw / 2,
		Right:  dw - dw/2,
	}, nil
}

// CropStrategy identifies the aspect ratio used for saliency cropping.
type CropStrategy int

const (
	// SquareStrategy crops landscape and square images to 1:1.
	SquareStrategy CropStrategy = iota
	// PortraitStrategy crops portrait images to 4:5.
	PortraitStrategy
)

func (s CropStrategy) String() string {
	switch s {
	case SquareStrategy:
		return "square"
	case PortraitStrategy:
		return "portrait"
	default:
		return fmt.Sprintf("CropStrategy(%d)", int(s))
	}
}

// CropTarget is the strategy chosen for an image and the crop size it asks for.
type CropTarget struct {
	Strategy CropStrategy
	Size     Dimensions
}

// SelectCropStrategy picks 1:1 for landscape or square images and 4:5 for
// portrait images. The crop width always equals the smallest side.
func SelectCropStrategy(d Dimensions) (CropTarget, error) {
	if err := d.Validate(); err != nil {
		return CropTarget{}, err
	}
	s := d.SmallestSide()
	if d.IsLandscapeOrSquare() {
		return CropTarget{Strategy: SquareStrategy, Size: Dimensions{Width: s, Height: s}}, nil
	}
	return CropTarget{Strategy: PortraitStrategy, Size: Dimensions{Width: s, Height: s * 5 / 4}}, nil
}

// FitWithin shrinks want, keeping its aspect ratio, until it fits inside
// bounds. A 4:5 target on a portrait image shorter than 5:4 is the only case
// that needs this.
func FitWithin(want, bounds Dimensions) Dimensions {
	if want.Width <= bounds.Width && want.Height <= bounds.Height {
		return want
	}
	// Compare want.W/want.H with bounds.W/bounds.H without floats.
	if want.Width*bounds.Height > want.Height*bounds.Width {
		h := want.Height * bounds.Width / want.Width
		return Dimensions{Width: bounds.Width, Height: max(h, 1)}
	}
	w := want.Width * bounds.Height / want.Height
	return Dimensions{Width: max(w, 1), Height: bounds.Height}
}
