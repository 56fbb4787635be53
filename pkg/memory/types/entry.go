// Package types holds the shared data model and error taxonomy of the
// memory store, kept dependency-free so the path validator, text editor,
// and storage backends can all build on it.
package types

import "time"

// Root is the reserved virtual directory every memory path lives under.
const Root = "/memories"

// Kind classifies what a path resolves to within a backend.
type Kind int

const (
	KindMissing Kind = iota
	KindFile
	KindDirectory
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "missing"
	}
}

// EntryInfo describes one entry as reported by ListAll. Pinned and Summary
// are owned by external collaborators; the store only surfaces them.
type EntryInfo struct {
	Path       string
	Kind       Kind
	Size       int
	ModifiedAt time.Time
	AccessedAt time.Time
	Pinned     bool
	Summary    string
}
