package filehandler

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata is the EXIF summary logged for each source. It is
// informational only: the pixel pipeline never depends on it.
type ImageMetadata struct {
	// Timestamp
	DateTaken time.Time
	HasDate   bool

	// Camera info
	CameraMake  string
	CameraModel string
}

// InspectSource extracts EXIF metadata from an in-memory image buffer using
// the imagemeta library, which reads only the metadata blocks of JPEG, TIFF,
// HEIC and friends.
//
// Date priority: DateTimeOriginal > CreateDate > ModifyDate.
func InspectSource(path string, data []byte) (*ImageMetadata, error) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		metadata.DateTaken = exifData.DateTimeOriginal()
		metadata.HasDate = true
	case !exifData.CreateDate().IsZero():
		metadata.DateTaken = exifData.CreateDate()
		metadata.HasDate = true
	case !exifData.ModifyDate().IsZero():
		metadata.DateTaken = exifData.ModifyDate()
		metadata.HasDate = true
	}

	log.Debug().
		Str("path", path).
		Bool("has_date", metadata.HasDate).
		Str("camera", metadata.Camera()).
		Msg("Source metadata extracted")

	return metadata, nil
}

// Camera returns "make model", or "" when neither is known.
func (m *ImageMetadata) Camera() string {
	return strings.TrimSpace(m.CameraMake + " " + m.CameraModel)
}
