package store

import (
	"context"
	"sync"

	"github.com/fpang/photo-derive/internal/filehandler"
)

// Router sends s3:// paths to a remote store and everything else to a local
// one. The remote store is built on first use, so local-only runs never load
// AWS configuration.
type Router struct {
	local  Store
	remote func() (Store, error)
}

var _ Store = (*Router)(nil)

// NewRouter creates a Router. newRemote is called at most once.
func NewRouter(local Store, newRemote func() (Store, error)) *Router {
	return &Router{local: local, remote: sync.OnceValues(newRemote)}
}

func (r *Router) pick(path string) (Store, error) {
	if filehandler.IsRemote(path) {
		return r.remote()
	}
	return r.local, nil
}

// Exists dispatches to the store owning path.
func (r *Router) Exists(ctx context.Context, path string) (bool, error) {
	s, err := r.pick(path)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, path)
}

// Read dispatches to the store owning path.
func (r *Router) Read(ctx context.Context, path string) ([]byte, error) {
	s, err := r.pick(path)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, path)
}

// Write dispatches to the store owning path.
func (r *Router) Write(ctx context.Context, path string, data []byte) error {
	s, err := r.pick(path)
	if err != nil {
		return err
	}
	return s.Write(ctx, path, data)
}
