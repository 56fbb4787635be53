// Package mirror renders the whole memory store into one external
// document. It consumes only the two read operations of the store
// contract, and its failures never propagate back: a broken mirror must
// not make a memory operation appear to fail.
package mirror

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/recall/pkg/logging"
	"github.com/entrhq/recall/pkg/memory/types"
)

// Source is the read-only slice of the store contract the mirror needs.
type Source interface {
	ListAll(ctx context.Context) ([]types.EntryInfo, error)
	ReadRaw(ctx context.Context, path string) (string, error)
}

// Target receives the rendered document.
type Target interface {
	Write(ctx context.Context, doc string) error
}

// FileTarget writes the document to one file on disk.
type FileTarget struct {
	Path string
}

// Write replaces the target file with doc.
func (t *FileTarget) Write(_ context.Context, doc string) error {
	return os.WriteFile(t.Path, []byte(doc), 0600)
}

// Syncer mirrors the store into a target document.
type Syncer struct {
	source  Source
	target  Target
	include []glob.Glob
	exclude []glob.Glob
	log     *logging.Logger
}

// Config selects which paths are mirrored. Empty Include mirrors
// everything; Exclude wins over Include. Patterns use '/' separators,
// e.g. "/memories/projects/**".
type Config struct {
	Include []string
	Exclude []string
}

// NewSyncer builds a syncer. log may be nil. Invalid glob patterns are an
// error: a silently broken filter would mirror the wrong files.
func NewSyncer(source Source, target Target, cfg Config, log *logging.Logger) (*Syncer, error) {
	s := &Syncer{source: source, target: target, log: log}
	for _, pat := range cfg.Include {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, fmt.Errorf("mirror: invalid include pattern %q: %w", pat, err)
		}
		s.include = append(s.include, g)
	}
	for _, pat := range cfg.Exclude {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, fmt.Errorf("mirror: invalid exclude pattern %q: %w", pat, err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

func (s *Syncer) matches(path string) bool {
	for _, g := range s.exclude {
		if g.Match(path) {
			return false
		}
	}
	if len(s.include) == 0 {
		return true
	}
	for _, g := range s.include {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Sync renders the store and writes the document. Failures are logged
// and swallowed.
func (s *Syncer) Sync(ctx context.Context) {
	if err := s.sync(ctx); err != nil {
		if s.log != nil {
			s.log.Errorf("mirror sync failed: %v", err)
		}
	}
}

func (s *Syncer) sync(ctx context.Context) error {
	entries, err := s.source.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list store: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Memory Mirror\n")
	for _, entry := range entries {
		if entry.Kind != types.KindFile || !s.matches(entry.Path) {
			continue
		}
		content, err := s.source.ReadRaw(ctx, entry.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Path, err)
		}
		fmt.Fprintf(&b, "\n## %s\n", entry.Path)
		if entry.Summary != "" {
			fmt.Fprintf(&b, "\n> %s\n", entry.Summary)
		}
		b.WriteString("\n```text\n")
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("```\n")
	}

	if err := s.target.Write(ctx, b.String()); err != nil {
		return fmt.Errorf("write mirror document: %w", err)
	}
	return nil
}
