package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/recall/pkg/memory/paths"
	"github.com/entrhq/recall/pkg/memory/types"
)

// diskMedium stores the namespace as a real directory tree: directories
// are real directories and file metadata derives from native stats.
// Access times are not portably readable in Go, so AccessedAt mirrors the
// modify time; touchAccess still forwards bumps to the filesystem via
// Chtimes. Summaries have no native home in file stats and live in a
// sidecar file next to the tree.
type diskMedium struct {
	base    string // real directory backing /memories
	sidecar string // summary sidecar path
	eng     *Engine
}

// NewDisk creates the on-disk backend rooted at dir: memory files live
// under <dir>/memories, summaries in <dir>/summaries.json.
func NewDisk(dir string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("store: resolve storage directory: %w", err)
	}
	base := filepath.Join(abs, "memories")
	if err := os.MkdirAll(base, 0750); err != nil {
		return nil, fmt.Errorf("store: create storage directory: %w", err)
	}
	m := &diskMedium{
		base:    base,
		sidecar: filepath.Join(abs, "summaries.json"),
	}
	eng := newEngine(m, opts...)
	m.eng = eng
	return eng, nil
}

// realPath maps a virtual path to its on-disk location, re-checking the
// jail at the filesystem boundary even though validation already ran.
func (m *diskMedium) realPath(path string) (string, error) {
	rel := paths.RelativeOf(path)
	real := filepath.Clean(filepath.Join(m.base, filepath.FromSlash(rel)))
	if real != m.base && !strings.HasPrefix(real, m.base+string(filepath.Separator)) {
		return "", &types.InvalidPathError{
			Path:    path,
			Message: fmt.Sprintf("Invalid path %q: resolves outside the memory root.", path),
		}
	}
	return real, nil
}

func (m *diskMedium) getFile(_ context.Context, path string) (*record, error) {
	real, err := m.realPath(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(real)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, nil
	}
	raw, err := os.ReadFile(real)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	summaries, err := m.loadSidecar()
	if err != nil {
		return nil, err
	}
	return &record{
		Content:    string(raw),
		ModifiedAt: fi.ModTime(),
		AccessedAt: fi.ModTime(),
		Summary:    summaries[path],
	}, nil
}

func (m *diskMedium) putFile(ctx context.Context, path string, rec *record) error {
	real, err := m.realPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(real), 0750); err != nil {
		return fmt.Errorf("store: create parent of %s: %w", path, err)
	}
	if err := os.WriteFile(real, []byte(rec.Content), 0600); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := os.Chtimes(real, rec.AccessedAt, rec.ModifiedAt); err != nil {
		return fmt.Errorf("store: set times on %s: %w", path, err)
	}
	return m.putSummary(ctx, path, rec.Summary)
}

func (m *diskMedium) deleteFile(ctx context.Context, path string) error {
	real, err := m.realPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	// Companion summary cleanup is best-effort: the file is already gone.
	if err := m.putSummary(ctx, path, ""); err != nil {
		m.eng.warnf("best-effort summary cleanup for %s failed: %v", path, err)
	}
	return nil
}

func (m *diskMedium) filePaths(_ context.Context) ([]string, error) {
	return m.walk(false)
}

func (m *diskMedium) dirPaths(_ context.Context) ([]string, error) {
	return m.walk(true)
}

func (m *diskMedium) walk(wantDirs bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(m.base, func(real string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if real == m.base {
			return nil
		}
		if d.IsDir() != wantDirs {
			return nil
		}
		rel, err := filepath.Rel(m.base, real)
		if err != nil {
			return err
		}
		out = append(out, types.Root+"/"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: walk memory tree: %w", err)
	}
	return out, nil
}

func (m *diskMedium) putDir(_ context.Context, path string) error {
	real, err := m.realPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(real, 0750); err != nil {
		return fmt.Errorf("store: create directory %s: %w", path, err)
	}
	return nil
}

func (m *diskMedium) deleteDir(_ context.Context, path string) error {
	real, err := m.realPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete directory %s: %w", path, err)
	}
	return nil
}

func (m *diskMedium) touchAccess(_ context.Context, path string, t time.Time) error {
	real, err := m.realPath(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(real)
	if err != nil {
		return fmt.Errorf("store: stat %s: %w", path, err)
	}
	if err := os.Chtimes(real, t, fi.ModTime()); err != nil {
		return fmt.Errorf("store: touch %s: %w", path, err)
	}
	return nil
}

func (m *diskMedium) putSummary(_ context.Context, path, summary string) error {
	summaries, err := m.loadSidecar()
	if err != nil {
		return err
	}
	if summary == "" {
		if _, ok := summaries[path]; !ok {
			return nil
		}
		delete(summaries, path)
	} else {
		summaries[path] = summary
	}
	return m.saveSidecar(summaries)
}

func (m *diskMedium) loadSidecar() (map[string]string, error) {
	raw, err := os.ReadFile(m.sidecar)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read summary sidecar: %w", err)
	}
	summaries := make(map[string]string)
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return nil, fmt.Errorf("store: decode summary sidecar: %w", err)
	}
	return summaries, nil
}

func (m *diskMedium) saveSidecar(summaries map[string]string) error {
	raw, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode summary sidecar: %w", err)
	}
	tmp := m.sidecar + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("store: write summary sidecar: %w", err)
	}
	if err := os.Rename(tmp, m.sidecar); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: commit summary sidecar: %w", err)
	}
	return nil
}
