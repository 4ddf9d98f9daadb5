// Package bundle packs the outputs of a run into one ZIP archive whose
// entries are compressed with Zstandard.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-derive/internal/store"
)

// MethodZstd is the ZIP compression method ID assigned to Zstandard.
const MethodZstd uint16 = 93

// Result describes a written bundle.
type Result struct {
	Path    string
	Entries int
	Size    int
}

// Write reads every path from src, stores them as flat entries of a ZIP at
// dest and returns what was written. Entry names are base names; a clash
// gets a numeric suffix. Missing inputs are skipped with a warning.
func Write(ctx context.Context, st store.Store, dest string, paths []string) (Result, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	zipWriter.RegisterCompressor(MethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})

	names := make(map[string]int)
	entries := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		data, err := st.Read(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read file for ZIP, skipping")
			continue
		}

		filename := entryName(path, names)
		header := &zip.FileHeader{
			Name:   filename,
			Method: MethodZstd,
		}
		header.SetModTime(time.Now())

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return Result{}, fmt.Errorf("create ZIP entry for %s: %w", filename, err)
		}
		if _, err := writer.Write(data); err != nil {
			return Result{}, fmt.Errorf("write to ZIP for %s: %w", filename, err)
		}
		entries++
	}

	if err := zipWriter.Close(); err != nil {
		return Result{}, fmt.Errorf("close ZIP writer: %w", err)
	}

	if err := st.Write(ctx, dest, buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("store ZIP: %w", err)
	}

	log.Info().
		Str("path", dest).
		Int("entries", entries).
		Int("size", buf.Len()).
		Msg("Bundle written")

	return Result{Path: dest, Entries: entries, Size: buf.Len()}, nil
}

func entryName(path string, seen map[string]int) string {
	name := filepath.Base(path)
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
