// Package filehandler resolves which files a run works on and how their
// derived outputs are named.
//
// It owns the supported-extension table, the output naming rule
// ("name.ext" -> "name-<suffix>.ext"), directory expansion and EXIF
// inspection of sources through evanoberholster/imagemeta.
package filehandler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions the pipeline cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedImageExtensions maps the extensions the pipeline can decode to
// their MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
}

// GetMIMEType returns the MIME type for a file extension (with leading dot).
func GetMIMEType(ext string) (string, error) {
	mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return mimeType, nil
}

// IsImage reports whether ext is a supported image extension.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// ContentTypeFor returns the MIME type to store an output under. Output
// extensions are cosmetic, so unknown extensions fall back to a generic type.
func ContentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if mimeType, err := GetMIMEType(ext); err == nil {
		return mimeType
	}
	if strings.EqualFold(ext, ".zip") {
		return "application/zip"
	}
	return "application/octet-stream"
}
