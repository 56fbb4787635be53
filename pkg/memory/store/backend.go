// Package store implements the common memory-store contract and its four
// physical adapters: a volatile in-process store, a cross-session sqlite
// store (with a branch-aware variant), an encrypted-at-rest store, and an
// on-disk tree store. Directory-model and text-editing semantics are
// shared by one engine so every adapter produces byte-identical output
// for equivalent content.
package store

import (
	"context"

	"github.com/entrhq/recall/pkg/memory/types"
)

// Backend is the common contract all storage adapters implement. One
// logical caller per instance; operations are invoked one at a time and
// run to completion (no internal retries, no mid-flight cancellation).
type Backend interface {
	// View returns a directory listing or line-numbered file text.
	// rng, when non-nil, is a 1-based inclusive [start, end] pair; an end
	// of -1 means "to the last line".
	View(ctx context.Context, path string, rng []int) (string, error)

	// ReadRaw returns the unrendered text of a memory file.
	ReadRaw(ctx context.Context, path string) (string, error)

	// Create upserts a file at path, materializing missing ancestor
	// directories. Existing content is overwritten.
	Create(ctx context.Context, path, content string) (string, error)

	// Replace substitutes the single occurrence of oldStr with newStr.
	Replace(ctx context.Context, path, oldStr, newStr string) (string, error)

	// Insert splices text as a new line at the 0-based line index.
	Insert(ctx context.Context, path string, line int, text string) (string, error)

	// Delete removes a file, or a directory and everything beneath it.
	Delete(ctx context.Context, path string) (string, error)

	// Rename moves a file, or a directory and everything beneath it,
	// preserving per-entry metadata.
	Rename(ctx context.Context, oldPath, newPath string) (string, error)

	// ListAll returns every entry except the root, sorted by path.
	ListAll(ctx context.Context) ([]types.EntryInfo, error)
}

// SummaryStore is the collaborator surface for externally computed file
// summaries. The store never computes summaries; it stores opaque text.
type SummaryStore interface {
	GetSummary(ctx context.Context, path string) (string, error)
	SetSummary(ctx context.Context, path, summary string) error
	ClearSummary(ctx context.Context, path string) error
}
