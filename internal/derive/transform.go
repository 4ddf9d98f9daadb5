package derive

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-derive/internal/engine"
	"github.com/fpang/photo-derive/internal/geometry"
	"github.com/fpang/photo-derive/internal/saliency"
)

// Default pipeline parameters.
const (
	DefaultLongestSide   = 2048
	DefaultResizeQuality = 80
	DefaultSquareQuality = 95
	DefaultCropQuality   = 95
	DefaultBlurSigma     = 24
)

// Options parameterises the transforms of a run.
type Options struct {
	LongestSide      int
	ResizeQuality    int
	SquareQuality    int
	CropQuality      int
	BlurSigma        float64
	Crop             bool
	PreserveMetadata bool
}

// DefaultOptions returns the standard 2048px pipeline with smart crop on.
func DefaultOptions() Options {
	return Options{
		LongestSide:      DefaultLongestSide,
		ResizeQuality:    DefaultResizeQuality,
		SquareQuality:    DefaultSquareQuality,
		CropQuality:      DefaultCropQuality,
		BlurSigma:        DefaultBlurSigma,
		Crop:             true,
		PreserveMetadata: true,
	}
}

// Transform produces one encoded output from a source.
type Transform func(ctx context.Context, src *Source) ([]byte, error)

// Variant is a named output of the pipeline.
type Variant struct {
	Suffix    string
	Transform Transform
}

// Variants returns the ordered output variants for opts: resize, square
// blur and, when opts.Crop is set, smart crop. cropper may be nil when crop
// is disabled.
func Variants(opts Options, cropper saliency.Cropper) []Variant {
	variants := []Variant{
		{Suffix: fmt.Sprintf("%d", opts.LongestSide), Transform: Resize(opts)},
		{Suffix: fmt.Sprintf("%d-s", opts.LongestSide), Transform: SquareBlur(opts)},
	}
	if opts.Crop {
		variants = append(variants, Variant{
			Suffix:    fmt.Sprintf("%d-c", opts.LongestSide),
			Transform: SmartCrop(opts, cropper),
		})
	}
	return variants
}

// Suffixes lists the suffixes of variants in order.
func Suffixes(variants []Variant) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = v.Suffix
	}
	return out
}

// resizeToLongest is the first stage shared by every transform.
func resizeToLongest(src *Source, longestSide int) (*image.NRGBA, error) {
	target, err := geometry.ResizeDimensions(src.Size, longestSide)
	if err != nil {
		return nil, err
	}
	return engine.Resize(src.Image(), target), nil
}

// encodeAs encodes img and, for JPEG output from a JPEG source, carries the
// source's EXIF and ICC segments across.
func encodeAs(img image.Image, format engine.Format, quality int, src *Source, preserve bool) ([]byte, error) {
	data, err := engine.Encode(img, format, quality)
	if err != nil {
		return nil, err
	}
	if preserve && format == engine.JPEG {
		data = src.Metadata.Inject(data)
	}
	return data, nil
}

// Resize constrains the longest side to opts.LongestSide without
// enlargement and re-encodes in the source's format.
func Resize(opts Options) Transform {
	return func(ctx context.Context, src *Source) ([]byte, error) {
		resized, err := resizeToLongest(src, opts.LongestSide)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Debug().
			Str("path", src.Path).
			Str("from", src.Size.String()).
			Str("to", engine.SizeOf(resized).String()).
			Msg("Resized to longest side")

		return encodeAs(resized, src.Format, opts.ResizeQuality, src, opts.PreserveMetadata)
	}
}

// SquareBlur centres the resized image, un-cropped, on a square canvas of
// side equal to its longest side. The border is a cover-fitted, heavily
// blurred copy of the same image rather than a solid colour. Output is JPEG.
func SquareBlur(opts Options) Transform {
	return func(ctx context.Context, src *Source) ([]byte, error) {
		resized, err := resizeToLongest(src, opts.LongestSide)
		if err != nil {
			return nil, err
		}

		size := engine.SizeOf(resized)
		side := size.LongestSide()
		padding, err := geometry.SquarePadding(size)
		if err != nil {
			return nil, err
		}

		layer := engine.Extend(resized, padding)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		background := engine.Blur(engine.Cover(resized, geometry.Dimensions{Width: side, Height: side}), opts.BlurSigma)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		composite := engine.CompositeCenter(background, layer)

		log.Debug().
			Str("path", src.Path).
			Int("side", side).
			Int("pad_top", padding.Top).
			Int("pad_bottom", padding.Bottom).
			Int("pad_left", padding.Left).
			Int("pad_right", padding.Right).
			Msg("Squared with blurred background")

		return encodeAs(composite, engine.JPEG, opts.SquareQuality, src, opts.PreserveMetadata)
	}
}

// SmartCrop crops the resized image to 1:1 (landscape or square) or 4:5
// (portrait) around the region cropper scores highest. The output is exactly
// the requested size; only portraits shorter than 4:5 shrink the request to
// fit. Output is JPEG.
func SmartCrop(opts Options, cropper saliency.Cropper) Transform {
	return func(ctx context.Context, src *Source) ([]byte, error) {
		if cropper == nil {
			return nil, fmt.Errorf("smart crop requires a saliency cropper")
		}

		resized, err := resizeToLongest(src, opts.LongestSide)
		if err != nil {
			return nil, err
		}

		size := engine.SizeOf(resized)
		target, err := geometry.SelectCropStrategy(size)
		if err != nil {
			return nil, err
		}
		want := geometry.FitWithin(target.Size, size)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rect, err := cropper.BestCrop(resized, want.Width, want.Height)
		if err != nil {
			return nil, fmt.Errorf("saliency crop failed: %w", err)
		}
		if rect.Dx() != want.Width || rect.Dy() != want.Height || !rect.In(resized.Bounds()) {
			return nil, fmt.Errorf("saliency crop returned %v, want %s inside %s", rect, want, size)
		}

		cropped := engine.Crop(resized, rect)

		log.Debug().
			Str("path", src.Path).
			Str("strategy", target.Strategy.String()).
			Str("crop", rect.String()).
			Msg("Saliency crop applied")

		return encodeAs(cropped, engine.JPEG, opts.CropQuality, src, opts.PreserveMetadata)
	}
}
