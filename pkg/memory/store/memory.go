package store

import (
	"context"
	"time"
)

// memoryMedium is the volatile substrate: plain maps, lost on process
// exit. An arena of path-keyed records plus a set of known directories.
type memoryMedium struct {
	files map[string]*record
	dirs  map[string]bool
}

// NewMemory creates a process-local volatile backend.
func NewMemory(opts ...Option) *Engine {
	return newEngine(&memoryMedium{
		files: make(map[string]*record),
		dirs:  make(map[string]bool),
	}, opts...)
}

func (m *memoryMedium) getFile(_ context.Context, path string) (*record, error) {
	rec, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return rec.clone(), nil
}

func (m *memoryMedium) putFile(_ context.Context, path string, rec *record) error {
	m.files[path] = rec.clone()
	return nil
}

func (m *memoryMedium) deleteFile(_ context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func (m *memoryMedium) filePaths(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryMedium) dirPaths(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.dirs))
	for p := range m.dirs {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryMedium) putDir(_ context.Context, path string) error {
	m.dirs[path] = true
	return nil
}

func (m *memoryMedium) deleteDir(_ context.Context, path string) error {
	delete(m.dirs, path)
	return nil
}

func (m *memoryMedium) touchAccess(_ context.Context, path string, t time.Time) error {
	if rec, ok := m.files[path]; ok {
		rec.AccessedAt = t
	}
	return nil
}

func (m *memoryMedium) putSummary(_ context.Context, path, summary string) error {
	if rec, ok := m.files[path]; ok {
		rec.Summary = summary
	}
	return nil
}
