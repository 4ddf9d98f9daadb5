package filehandler

import (
	"path/filepath"
	"strings"
)

// WithSuffix inserts "-suffix" immediately before the extension of path,
// keeping the directory and the extension untouched:
//
//	/photos/IMG_1.jpg + "2048-s" -> /photos/IMG_1-2048-s.jpg
//
// The name is purely cosmetic; it never implies the encoded format.
// Works for s3:// URLs as well as local paths.
func WithSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + suffix + ext
}

// IsDerived reports whether path looks like an output produced with one of
// suffixes, so directory scans and watch mode never feed outputs back in.
func IsDerived(path string, suffixes []string) bool {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, s := range suffixes {
		if strings.HasSuffix(stem, "-"+s) {
			return true
		}
	}
	return false
}
