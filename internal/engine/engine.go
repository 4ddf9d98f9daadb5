// Package engine adapts the pixel-level image libraries to the small set of
// operations the derivation pipeline composes: decode, resize, canvas
// extension, cover fill, Gaussian blur, centred compositing, crop and encode.
//
// Pixel work is delegated to github.com/disintegration/imaging. Transparent
// canvas extension uses golang.org/x/image/draw. WebP is decoded and encoded
// by github.com/chai2010/webp, whose init registers the format with
// image.Decode.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/fpang/photo-derive/internal/filehandler"
	"github.com/fpang/photo-derive/internal/geometry"
)

// Format is an encoded image container.
type Format string

// Formats the engine can decode. All but WebP are encoded through imaging.
const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	GIF  Format = "gif"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
	WebP Format = "webp"
)

// ErrUnsupportedFormat is returned when a buffer cannot be decoded or a
// format cannot be encoded.
var ErrUnsupportedFormat = filehandler.ErrUnsupportedFormat

var imagingFormats = map[Format]imaging.Format{
	JPEG: imaging.JPEG,
	PNG:  imaging.PNG,
	GIF:  imaging.GIF,
	TIFF: imaging.TIFF,
	BMP:  imaging.BMP,
}

// Decode decodes a complete image buffer and reports its container format.
// Orientation tags are not applied: outputs keep the source's EXIF, so
// viewers rotate them the same way as the original.
func Decode(data []byte) (image.Image, Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, Format(name), nil
}

// SizeOf returns the pixel dimensions of img.
func SizeOf(img image.Image) geometry.Dimensions {
	b := img.Bounds()
	return geometry.Dimensions{Width: b.Dx(), Height: b.Dy()}
}

// Resize scales img to exactly d using Lanczos resampling. An image already
// of size d is copied instead of resampled.
func Resize(img image.Image, d geometry.Dimensions) *image.NRGBA {
	if SizeOf(img) == d {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, d.Width, d.Height, imaging.Lanczos)
}

// Extend places img on a fully transparent canvas grown by p on each edge.
// A fresh NRGBA canvas is zeroed, which is transparent black.
func Extend(img image.Image, p geometry.Padding) *image.NRGBA {
	size := SizeOf(img)
	canvas := image.NewNRGBA(image.Rect(0, 0, size.Width+p.Left+p.Right, size.Height+p.Top+p.Bottom))
	dst := image.Rect(p.Left, p.Top, p.Left+size.Width, p.Top+size.Height)
	draw.Draw(canvas, dst, img, img.Bounds().Min, draw.Src)
	return canvas
}

// Cover scales and centre-crops img so it fills exactly d with no padding.
// The largest centred region with d's aspect ratio is cut out first and only
// that region is scaled, so memory stays bounded by d however thin img is.
func Cover(img image.Image, d geometry.Dimensions) *image.NRGBA {
	region := coverRegion(SizeOf(img), d)
	cropped := imaging.CropAnchor(img, region.Width, region.Height, imaging.Center)
	return imaging.Resize(cropped, d.Width, d.Height, imaging.Lanczos)
}

// coverRegion is the largest size inside src with the aspect ratio of d,
// at least 1x1.
func coverRegion(src, d geometry.Dimensions) geometry.Dimensions {
	w := min(src.Width, src.Height*d.Width/d.Height)
	h := min(src.Height, src.Width*d.Height/d.Width)
	return geometry.Dimensions{Width: max(w, 1), Height: max(h, 1)}
}

// Blur applies a Gaussian blur with the given sigma.
func Blur(img image.Image, sigma float64) *image.NRGBA {
	return imaging.Blur(img, sigma)
}

// CompositeCenter draws layer over background, centred, honouring the
// layer's alpha channel.
func CompositeCenter(background, layer image.Image) *image.NRGBA {
	return imaging.OverlayCenter(background, layer, 1.0)
}

// Crop extracts rect from img. The rectangle is in img's coordinate space.
func Crop(img image.Image, rect image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, rect)
}

// Encode serialises img as format. Quality applies to the lossy formats
// (JPEG and WebP) and is ignored otherwise.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer

	if format == WebP {
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("failed to encode webp: %w", err)
		}
		return buf.Bytes(), nil
	}

	f, ok := imagingFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, format)
	}
	if err := imaging.Encode(&buf, img, f, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
