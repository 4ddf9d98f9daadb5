// Package derive turns one source photograph into its output variants.
//
// A Source is decoded once and shared read-only by every transform of the
// same file. Each Variant pairs a file-name suffix with a Transform; the
// set of variants for a run comes from Variants and is fixed for that run.
//
// The three transforms are:
//
//	resize      longest side constrained, aspect kept, no enlargement,
//	            re-encoded in the source's own format
//	square blur resized image centred on a square, blurred cover of itself,
//	            always JPEG
//	smart crop  saliency-chosen 1:1 (landscape) or 4:5 (portrait) crop of
//	            the resized image, always JPEG
package derive

import (
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-derive/internal/engine"
	"github.com/fpang/photo-derive/internal/filehandler"
	"github.com/fpang/photo-derive/internal/geometry"
)

// Source is a decoded input image. It is never mutated after NewSource
// returns, so any number of goroutines may read it.
type Source struct {
	Path     string
	Format   engine.Format
	Size     geometry.Dimensions
	Metadata engine.Metadata
	Info     *filehandler.ImageMetadata

	image image.Image
}

// NewSource decodes data and validates its dimensions. A zero-sized image is
// rejected with geometry.ErrInvalidDimensions.
func NewSource(path string, data []byte) (*Source, error) {
	img, format, err := engine.Decode(data)
	if err != nil {
		return nil, err
	}

	size := engine.SizeOf(img)
	if err := size.Validate(); err != nil {
		return nil, fmt.Errorf("source metadata could not be determined: %w", err)
	}

	src := &Source{
		Path:   path,
		Format: format,
		Size:   size,
		image:  img,
	}
	if format == engine.JPEG {
		src.Metadata = engine.ExtractJPEGMetadata(data)
	}

	info, err := filehandler.InspectSource(path, data)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No EXIF metadata, continuing without it")
	} else {
		src.Info = info
	}

	evt := log.Debug().
		Str("path", path).
		Str("format", string(format)).
		Int("width", size.Width).
		Int("height", size.Height).
		Int("metadata_segments", len(src.Metadata.Segments))
	if src.Info != nil && src.Info.HasDate {
		evt = evt.Time("date_taken", src.Info.DateTaken)
	}
	evt.Msg("Source decoded")

	return src, nil
}

// Image returns the decoded pixels. Callers must not modify them.
func (s *Source) Image() image.Image {
	return s.image
}
