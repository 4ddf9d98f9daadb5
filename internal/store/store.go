// Package store is the byte-level persistence the batch pipeline reads
// sources from and writes outputs to. Idempotent reruns rely on Exists: an
// output that is already present is never recomputed or overwritten.
//
// Three backends implement Store: Local (filesystem, atomic rename on
// write), S3 (s3://bucket/key URLs) and Memory (tests). Router
// dispatches on the path scheme so one run can mix local and S3 paths.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// Store defines the capabilities the orchestrator needs. Implementations
// must be safe for concurrent use.
type Store interface {
	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Read returns the full contents at path. Missing objects yield an
	// error wrapping ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write stores data at path. Readers see either no object or the
	// complete one, never a partial write.
	Write(ctx context.Context, path string, data []byte) error
}
