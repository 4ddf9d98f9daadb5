package filehandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanOptions configures directory expansion.
type ScanOptions struct {
	// MaxDepth limits recursion depth. 0 = unlimited, 1 = top-level only.
	MaxDepth int

	// DerivedSuffixes lists output suffixes; matching files are skipped.
	DerivedSuffixes []string
}

// IsRemote reports whether path addresses object storage rather than the
// local filesystem.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ExpandInputs turns command-line arguments into a list of source files.
// Directories are replaced by the supported images they contain; files and
// s3:// URLs are passed through unchanged, so an explicit bad file still
// surfaces as a per-file failure later. Local paths are cleaned, so
// "a.jpg" and "./a.jpg" count as one input. Duplicates are dropped.
func ExpandInputs(args []string, opts ScanOptions) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(p string) {
		if !IsRemote(p) {
			p = filepath.Clean(p)
		}
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		if IsRemote(arg) {
			add(arg)
			continue
		}

		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			// Missing or unreadable files fail later, per file.
			add(arg)
			continue
		}

		found, err := ScanDirectory(arg, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}

	return files, nil
}

// ScanDirectory returns the supported, non-derived images under dirPath,
// sorted by path. Symlinks to files are followed; symlinks to directories are
// skipped to prevent loops.
func ScanDirectory(dirPath string, opts ScanOptions) ([]string, error) {
	log.Debug().
		Str("path", dirPath).
		Int("max_depth", opts.MaxDepth).
		Msg("Scanning directory for images")

	var files []string
	var derived int

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
			return nil
		}

		if d.IsDir() {
			if opts.MaxDepth > 0 && path != dirPath && depth(dirPath, path) >= opts.MaxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to resolve symlink, skipping")
				return nil
			}
			if target.IsDir() {
				log.Debug().Str("path", path).Msg("Skipping symlink to directory")
				return nil
			}
		}

		if !IsImage(filepath.Ext(d.Name())) {
			return nil
		}
		if IsDerived(path, opts.DerivedSuffixes) {
			derived++
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(files)

	log.Info().
		Str("directory", dirPath).
		Int("images", len(files)).
		Int("derived_skipped", derived).
		Msg("Directory scan complete")

	return files, nil
}

// depth returns how many directory levels path sits below root.
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}
