package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store. It records every write so tests can
// assert on what a run produced.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	writes  []string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put seeds an object without counting it as a write.
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
}

// Exists reports whether path has been stored.
func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

// Read returns the stored bytes for path.
func (m *Memory) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, nil
}

// Write stores a copy of data at path.
func (m *Memory) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), data...)
	m.writes = append(m.writes, path)
	return nil
}

// Writes returns the paths written so far, sorted.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.writes...)
	sort.Strings(out)
	return out
}
