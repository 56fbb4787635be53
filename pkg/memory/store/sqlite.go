package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/entrhq/recall/pkg/logging"
	"github.com/entrhq/recall/pkg/memory/types"
)

// sqliteMedium persists the path-keyed namespace in one sqlite database
// per caller identity.
type sqliteMedium struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the cross-session backend for one caller
// identity. The database lives at <stateDir>/<identity>.db.
func NewSQLite(stateDir, identity string, opts ...Option) (*Engine, error) {
	if identity == "" {
		return nil, fmt.Errorf("store: identity cannot be empty")
	}
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		return nil, fmt.Errorf("store: create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(stateDir, identity+".db"))
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	// One caller, one operation at a time. A single connection also avoids
	// sqlite writer lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	m := &sqliteMedium{db: db}
	if err := m.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newEngine(m, opts...), nil
}

func (m *sqliteMedium) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS files (
			path    TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			atime   INTEGER NOT NULL,
			mtime   INTEGER NOT NULL,
			summary TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS dirs (
			path TEXT PRIMARY KEY
		);`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (m *sqliteMedium) Close() error {
	return m.db.Close()
}

func (m *sqliteMedium) getFile(ctx context.Context, path string) (*record, error) {
	var (
		content, summary string
		atime, mtime     int64
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT content, atime, mtime, summary FROM files WHERE path = ?`, path).
		Scan(&content, &atime, &mtime, &summary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	return &record{
		Content:    content,
		AccessedAt: time.Unix(0, atime),
		ModifiedAt: time.Unix(0, mtime),
		Summary:    summary,
	}, nil
}

func (m *sqliteMedium) putFile(ctx context.Context, path string, rec *record) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO files (path, content, atime, mtime, summary) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			content = excluded.content,
			atime   = excluded.atime,
			mtime   = excluded.mtime,
			summary = excluded.summary`,
		path, rec.Content, rec.AccessedAt.UnixNano(), rec.ModifiedAt.UnixNano(), rec.Summary)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}

func (m *sqliteMedium) deleteFile(ctx context.Context, path string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	return nil
}

func (m *sqliteMedium) filePaths(ctx context.Context) ([]string, error) {
	return m.selectPaths(ctx, `SELECT path FROM files ORDER BY path`)
}

func (m *sqliteMedium) dirPaths(ctx context.Context) ([]string, error) {
	return m.selectPaths(ctx, `SELECT path FROM dirs ORDER BY path`)
}

func (m *sqliteMedium) selectPaths(ctx context.Context, query string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: enumerate paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (m *sqliteMedium) putDir(ctx context.Context, path string) error {
	if _, err := m.db.ExecContext(ctx, `INSERT OR IGNORE INTO dirs (path) VALUES (?)`, path); err != nil {
		return fmt.Errorf("store: record directory %s: %w", path, err)
	}
	return nil
}

func (m *sqliteMedium) deleteDir(ctx context.Context, path string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM dirs WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete directory %s: %w", path, err)
	}
	return nil
}

func (m *sqliteMedium) touchAccess(ctx context.Context, path string, t time.Time) error {
	if _, err := m.db.ExecContext(ctx,
		`UPDATE files SET atime = ? WHERE path = ?`, t.UnixNano(), path); err != nil {
		return fmt.Errorf("store: touch %s: %w", path, err)
	}
	return nil
}

func (m *sqliteMedium) putSummary(ctx context.Context, path, summary string) error {
	if _, err := m.db.ExecContext(ctx,
		`UPDATE files SET summary = ? WHERE path = ?`, summary, path); err != nil {
		return fmt.Errorf("store: set summary %s: %w", path, err)
	}
	return nil
}

// IdentityKey derives the storage key for one caller identity. The branch
// name is sanitized into a readable slug and the full identity is hashed,
// so hostile branch names cannot escape the state directory.
func IdentityKey(workspace, branch string) string {
	if branch == "" {
		branch = "default"
	}
	sum := sha256.Sum256([]byte(workspace + "\x00" + branch))
	return fmt.Sprintf("%s-%s", sanitizeKeySegment(branch), hex.EncodeToString(sum[:6]))
}

func sanitizeKeySegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "default"
	}
	if len(slug) > 32 {
		slug = slug[:32]
	}
	return slug
}

// BranchAware is the branch-sensitive variant of the sqlite backend: the
// namespace is re-partitioned by the current source-control branch. On a
// branch-change notification the identity key is recomputed and the new
// partition is opened lazily; data is never migrated in place.
type BranchAware struct {
	stateDir  string
	workspace string
	opts      []Option
	log       *logging.Logger

	mu      sync.Mutex
	branch  string
	current *Engine
}

// NewBranchAware creates the branch-partitioned backend. branch is the
// initially detected branch ("" is treated as "default"); log may be nil.
func NewBranchAware(stateDir, workspace, branch string, log *logging.Logger, opts ...Option) *BranchAware {
	return &BranchAware{
		stateDir:  stateDir,
		workspace: workspace,
		branch:    branch,
		log:       log,
		opts:      opts,
	}
}

// OnBranchChange re-keys the namespace. The partition for the new branch
// is opened on the next operation. The watcher calls this from its own
// goroutine: a verb in flight on the old partition when it closes fails
// with a closed-database error and can simply be retried; the data itself
// is never at risk.
func (b *BranchAware) OnBranchChange(branch string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if branch == b.branch {
		return
	}
	if b.log != nil {
		b.log.Infof("branch change: %q -> %q, re-keying memory namespace", b.branch, branch)
	}
	if b.current != nil {
		if err := b.current.Close(); err != nil && b.log != nil {
			b.log.Warnf("closing partition for branch %q: %v", b.branch, err)
		}
		b.current = nil
	}
	b.branch = branch
}

// Branch returns the branch the store is currently partitioned by.
func (b *BranchAware) Branch() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.branch
}

func (b *BranchAware) backend() (*Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		eng, err := NewSQLite(b.stateDir, IdentityKey(b.workspace, b.branch), b.opts...)
		if err != nil {
			return nil, err
		}
		b.current = eng
	}
	return b.current, nil
}

// Close releases the currently open partition.
func (b *BranchAware) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	err := b.current.Close()
	b.current = nil
	return err
}

func (b *BranchAware) View(ctx context.Context, path string, rng []int) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.View(ctx, path, rng)
}

func (b *BranchAware) ReadRaw(ctx context.Context, path string) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.ReadRaw(ctx, path)
}

func (b *BranchAware) Create(ctx context.Context, path, content string) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.Create(ctx, path, content)
}

func (b *BranchAware) Replace(ctx context.Context, path, oldStr, newStr string) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.Replace(ctx, path, oldStr, newStr)
}

func (b *BranchAware) Insert(ctx context.Context, path string, line int, text string) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.Insert(ctx, path, line, text)
}

func (b *BranchAware) Delete(ctx context.Context, path string) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.Delete(ctx, path)
}

func (b *BranchAware) Rename(ctx context.Context, oldPath, newPath string) (string, error) {
	eng, err := b.backend()
	if err != nil {
		return "", err
	}
	return eng.Rename(ctx, oldPath, newPath)
}

func (b *BranchAware) ListAll(ctx context.Context) ([]types.EntryInfo, error) {
	eng, err := b.backend()
	if err != nil {
		return nil, err
	}
	return eng.ListAll(ctx)
}

var _ Backend = (*BranchAware)(nil)
