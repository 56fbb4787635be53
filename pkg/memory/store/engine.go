package store

import (
	"context"
	"fmt"
	"io"
	gopath "path"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/recall/pkg/logging"
	"github.com/entrhq/recall/pkg/memory/paths"
	"github.com/entrhq/recall/pkg/memory/pins"
	"github.com/entrhq/recall/pkg/memory/textedit"
	"github.com/entrhq/recall/pkg/memory/types"
)

// Engine implements the Backend contract over a physical medium. All
// directory-model bookkeeping, metadata tracking, and text-editing
// semantics live here; adapters only move bytes.
//
// No internal locking: one logical caller per instance, operations
// invoked one at a time.
type Engine struct {
	phys physical
	pins pins.Tracker
	log  *logging.Logger
	now  func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPins attaches a pin tracker. The engine consults it for listings
// and notifies it of removed and renamed files.
func WithPins(t pins.Tracker) Option {
	return func(e *Engine) {
		e.pins = t
	}
}

// WithLogger attaches a component logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func newEngine(phys physical, opts ...Option) *Engine {
	e := &Engine{
		phys: phys,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases the underlying medium if it holds resources.
func (e *Engine) Close() error {
	if c, ok := e.phys.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Engine) debugf(format string, v ...interface{}) {
	if e.log != nil {
		e.log.Debugf(format, v...)
	}
}

func (e *Engine) warnf(format string, v ...interface{}) {
	if e.log != nil {
		e.log.Warnf(format, v...)
	}
}

// checkPath validates the raw input and returns its normalized form.
// Validation runs before any storage access.
func (e *Engine) checkPath(p string) (string, error) {
	if err := paths.Validate(p); err != nil {
		return "", err
	}
	return paths.Normalize(p), nil
}

// resolveKind reports whether path is a file, a directory, or missing.
// The root always resolves as a directory. A path with descendants is a
// directory even if the medium lost track of the explicit entry.
func (e *Engine) resolveKind(ctx context.Context, path string) (types.Kind, error) {
	if path == types.Root {
		return types.KindDirectory, nil
	}
	rec, err := e.phys.getFile(ctx, path)
	if err != nil {
		return types.KindMissing, err
	}
	if rec != nil {
		return types.KindFile, nil
	}
	dirs, err := e.phys.dirPaths(ctx)
	if err != nil {
		return types.KindMissing, err
	}
	for _, d := range dirs {
		if d == path {
			return types.KindDirectory, nil
		}
	}
	files, err := e.phys.filePaths(ctx)
	if err != nil {
		return types.KindMissing, err
	}
	for _, f := range files {
		if strings.HasPrefix(f, path+"/") {
			return types.KindDirectory, nil
		}
	}
	return types.KindMissing, nil
}

// ensureAncestors materializes every missing parent directory of path, up
// to but excluding the root. An ancestor that already exists as a file
// fails the whole operation: a path resolves to one kind, never both.
func (e *Engine) ensureAncestors(ctx context.Context, path string) error {
	var ancestors []string
	for dir := gopath.Dir(path); dir != types.Root && dir != "/" && dir != "."; dir = gopath.Dir(dir) {
		ancestors = append(ancestors, dir)
	}
	// Top-down so parents exist before children on tree media.
	for i := len(ancestors) - 1; i >= 0; i-- {
		rec, err := e.phys.getFile(ctx, ancestors[i])
		if err != nil {
			return err
		}
		if rec != nil {
			return &types.InvalidPathError{
				Path: path,
				Message: fmt.Sprintf(
					"Invalid path %s: %s is a file, not a directory.", path, ancestors[i]),
			}
		}
		if err := e.phys.putDir(ctx, ancestors[i]); err != nil {
			return err
		}
	}
	return nil
}

// childNames collects the immediate children of dirPath: entries whose
// path starts with dirPath+"/" and whose remainder has no further
// separator. Directory names carry a trailing "/".
func (e *Engine) childNames(ctx context.Context, dirPath string) ([]string, error) {
	prefix := dirPath + "/"
	seen := make(map[string]bool)
	var names []string

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	files, err := e.phys.filePaths(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		rest, ok := strings.CutPrefix(f, prefix)
		if !ok {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			add(rest[:i] + "/")
		} else {
			add(rest)
		}
	}

	dirs, err := e.phys.dirPaths(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		rest, ok := strings.CutPrefix(d, prefix)
		if !ok {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			add(rest[:i] + "/")
		} else {
			add(rest + "/")
		}
	}

	sort.Strings(names)
	return names, nil
}

func (e *Engine) renderDirectory(ctx context.Context, dirPath string) (string, error) {
	names, err := e.childNames(ctx, dirPath)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Directory: %s", dirPath)
	if len(names) == 0 {
		b.WriteString("\n(empty)")
		return b.String(), nil
	}
	for _, name := range names {
		fmt.Fprintf(&b, "\n- %s", name)
	}
	return b.String(), nil
}

// notFound builds the view-facing NotFoundError: file-like paths get the
// "not yet created" wording, everything else the generic one.
func notFound(path string) *types.NotFoundError {
	base := gopath.Base(path)
	if strings.Contains(base, ".") {
		return &types.NotFoundError{
			Path: path,
			Message: fmt.Sprintf(
				"Memory file %s has not been created yet. Use the create command to write it, or view %s to see what exists.",
				path, types.Root),
		}
	}
	return &types.NotFoundError{
		Path: path,
		Message: fmt.Sprintf(
			"Path %s not found. View the root directory %s first to see what exists.",
			path, types.Root),
	}
}

// getExisting loads the record for an edit target, failing with the
// standard remediation text when it is missing or a directory.
func (e *Engine) getExisting(ctx context.Context, path, verb string) (*record, error) {
	kind, err := e.resolveKind(ctx, path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.KindFile:
		return e.phys.getFile(ctx, path)
	case types.KindDirectory:
		return nil, &types.NotFoundError{
			Path: path,
			Message: fmt.Sprintf(
				"Cannot %s %s: it is a directory, not a memory file.", verb, path),
		}
	default:
		return nil, &types.NotFoundError{
			Path: path,
			Message: fmt.Sprintf(
				"Cannot %s %s: no such memory file. View the root directory %s first to see what exists.",
				verb, path, types.Root),
		}
	}
}

// View returns a directory listing or the line-numbered text of a file.
// Viewing a file bumps its access time.
func (e *Engine) View(ctx context.Context, path string, rng []int) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	if rng != nil && len(rng) != 2 {
		return "", &types.InvalidLineError{
			Path:    norm,
			Message: fmt.Sprintf("Invalid view_range: expected [start, end], got %d values.", len(rng)),
		}
	}
	kind, err := e.resolveKind(ctx, norm)
	if err != nil {
		return "", err
	}
	switch kind {
	case types.KindDirectory:
		return e.renderDirectory(ctx, norm)
	case types.KindFile:
		rec, err := e.phys.getFile(ctx, norm)
		if err != nil {
			return "", err
		}
		if err := e.phys.touchAccess(ctx, norm, e.now()); err != nil {
			return "", err
		}
		return textedit.RenderView(rec.Content, rng), nil
	default:
		return "", notFound(norm)
	}
}

// ReadRaw returns the unrendered content of a memory file and bumps its
// access time.
func (e *Engine) ReadRaw(ctx context.Context, path string) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	rec, err := e.getExisting(ctx, norm, "read")
	if err != nil {
		return "", err
	}
	if err := e.phys.touchAccess(ctx, norm, e.now()); err != nil {
		return "", err
	}
	return rec.Content, nil
}

// Create upserts a file, materializing missing ancestors. An existing
// file is overwritten; its externally owned summary is preserved.
func (e *Engine) Create(ctx context.Context, path, content string) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	kind, err := e.resolveKind(ctx, norm)
	if err != nil {
		return "", err
	}
	if kind == types.KindDirectory {
		return "", &types.InvalidPathError{
			Path:    norm,
			Message: fmt.Sprintf("Cannot create %s: the path is a directory.", norm),
		}
	}
	if err := e.ensureAncestors(ctx, norm); err != nil {
		return "", err
	}

	now := e.now()
	rec := &record{Content: content, ModifiedAt: now, AccessedAt: now}
	if kind == types.KindFile {
		if old, err := e.phys.getFile(ctx, norm); err == nil && old != nil {
			rec.Summary = old.Summary
		}
	}
	if err := e.phys.putFile(ctx, norm, rec); err != nil {
		return "", err
	}
	e.debugf("create %s (%d bytes)", norm, len(content))
	return fmt.Sprintf("File created successfully at %s", norm), nil
}

// Replace substitutes the single occurrence of oldStr with newStr and
// bumps the modify time.
func (e *Engine) Replace(ctx context.Context, path, oldStr, newStr string) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	rec, err := e.getExisting(ctx, norm, "edit")
	if err != nil {
		return "", err
	}
	edited, err := textedit.UniqueReplace(rec.Content, oldStr, newStr, norm)
	if err != nil {
		return "", err
	}
	updated := rec.clone()
	updated.Content = edited
	updated.ModifiedAt = e.now()
	if err := e.phys.putFile(ctx, norm, updated); err != nil {
		return "", err
	}
	e.debugf("replace in %s", norm)
	return fmt.Sprintf("The file %s has been edited.", norm), nil
}

// Insert splices text as a new line at the 0-based index and bumps the
// modify time.
func (e *Engine) Insert(ctx context.Context, path string, line int, text string) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	rec, err := e.getExisting(ctx, norm, "edit")
	if err != nil {
		return "", err
	}
	edited, err := textedit.InsertAtLine(rec.Content, line, text)
	if err != nil {
		return "", err
	}
	updated := rec.clone()
	updated.Content = edited
	updated.ModifiedAt = e.now()
	if err := e.phys.putFile(ctx, norm, updated); err != nil {
		return "", err
	}
	e.debugf("insert at line %d in %s", line, norm)
	return fmt.Sprintf("Text inserted at line %d in %s.", line, norm), nil
}

// Delete removes a file, or a directory together with every descendant.
// The root itself is never removed. The pin tracker is notified for every
// removed file.
func (e *Engine) Delete(ctx context.Context, path string) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	if norm == types.Root {
		return "", &types.InvalidPathError{
			Path:    norm,
			Message: fmt.Sprintf("The root directory %s cannot be deleted.", types.Root),
		}
	}
	kind, err := e.resolveKind(ctx, norm)
	if err != nil {
		return "", err
	}
	switch kind {
	case types.KindFile:
		if err := e.phys.deleteFile(ctx, norm); err != nil {
			return "", err
		}
		if e.pins != nil {
			e.pins.OnRemove(norm)
		}
		e.debugf("delete file %s", norm)
		return fmt.Sprintf("File deleted: %s", norm), nil

	case types.KindDirectory:
		if err := e.deleteSubtree(ctx, norm); err != nil {
			return "", err
		}
		e.debugf("delete directory %s", norm)
		return fmt.Sprintf("Directory deleted: %s", norm), nil

	default:
		return "", &types.NotFoundError{
			Path: norm,
			Message: fmt.Sprintf(
				"Cannot delete %s: path not found. View the root directory %s first to see what exists.",
				norm, types.Root),
		}
	}
}

// deleteSubtree removes every file and directory at or below dirPath.
func (e *Engine) deleteSubtree(ctx context.Context, dirPath string) error {
	prefix := dirPath + "/"

	files, err := e.phys.filePaths(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f != dirPath && !strings.HasPrefix(f, prefix) {
			continue
		}
		if err := e.phys.deleteFile(ctx, f); err != nil {
			return err
		}
		if e.pins != nil {
			e.pins.OnRemove(f)
		}
	}

	dirs, err := e.phys.dirPaths(ctx)
	if err != nil {
		return err
	}
	var doomed []string
	for _, d := range dirs {
		if d == dirPath || strings.HasPrefix(d, prefix) {
			doomed = append(doomed, d)
		}
	}
	// Deepest first so tree media can remove empty directories.
	sort.Slice(doomed, func(i, j int) bool { return len(doomed[i]) > len(doomed[j]) })
	for _, d := range doomed {
		if err := e.phys.deleteDir(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves a file, or remaps every descendant of a directory,
// preserving per-entry metadata. The pin tracker is notified of every
// path change.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) (string, error) {
	oldNorm, err := e.checkPath(oldPath)
	if err != nil {
		return "", err
	}
	newNorm, err := e.checkPath(newPath)
	if err != nil {
		return "", err
	}
	if oldNorm == types.Root {
		return "", &types.InvalidPathError{
			Path:    oldNorm,
			Message: fmt.Sprintf("The root directory %s cannot be renamed.", types.Root),
		}
	}
	if newNorm == oldNorm || strings.HasPrefix(newNorm, oldNorm+"/") {
		return "", &types.InvalidPathError{
			Path:    newNorm,
			Message: fmt.Sprintf("Cannot rename %s to %s: the destination is inside the source.", oldNorm, newNorm),
		}
	}
	destKind, err := e.resolveKind(ctx, newNorm)
	if err != nil {
		return "", err
	}
	if destKind != types.KindMissing {
		return "", &types.InvalidPathError{
			Path:    newNorm,
			Message: fmt.Sprintf("Cannot rename %s to %s: the destination already exists.", oldNorm, newNorm),
		}
	}

	kind, err := e.resolveKind(ctx, oldNorm)
	if err != nil {
		return "", err
	}
	switch kind {
	case types.KindFile:
		if err := e.ensureAncestors(ctx, newNorm); err != nil {
			return "", err
		}
		if err := e.moveFile(ctx, oldNorm, newNorm); err != nil {
			return "", err
		}

	case types.KindDirectory:
		if err := e.ensureAncestors(ctx, newNorm); err != nil {
			return "", err
		}
		if err := e.renameSubtree(ctx, oldNorm, newNorm); err != nil {
			return "", err
		}

	default:
		return "", &types.NotFoundError{
			Path: oldNorm,
			Message: fmt.Sprintf(
				"Cannot rename %s: source not found. View the root directory %s first to see what exists.",
				oldNorm, types.Root),
		}
	}

	e.debugf("rename %s -> %s", oldNorm, newNorm)
	return fmt.Sprintf("Renamed %s to %s", oldNorm, newNorm), nil
}

func (e *Engine) moveFile(ctx context.Context, oldPath, newPath string) error {
	rec, err := e.phys.getFile(ctx, oldPath)
	if err != nil {
		return err
	}
	if err := e.phys.putFile(ctx, newPath, rec); err != nil {
		return err
	}
	if err := e.phys.deleteFile(ctx, oldPath); err != nil {
		return err
	}
	if e.pins != nil {
		e.pins.OnRename(oldPath, newPath)
	}
	return nil
}

// renameSubtree remaps every descendant of oldPath by prefix replacement.
func (e *Engine) renameSubtree(ctx context.Context, oldPath, newPath string) error {
	prefix := oldPath + "/"

	if err := e.phys.putDir(ctx, newPath); err != nil {
		return err
	}

	dirs, err := e.phys.dirPaths(ctx)
	if err != nil {
		return err
	}
	var oldDirs []string
	for _, d := range dirs {
		if d == oldPath || strings.HasPrefix(d, prefix) {
			oldDirs = append(oldDirs, d)
		}
	}
	// Shallowest first so parents exist before children on tree media.
	sort.Slice(oldDirs, func(i, j int) bool { return len(oldDirs[i]) < len(oldDirs[j]) })
	for _, d := range oldDirs {
		if d == oldPath {
			continue
		}
		if err := e.phys.putDir(ctx, newPath+strings.TrimPrefix(d, oldPath)); err != nil {
			return err
		}
	}

	files, err := e.phys.filePaths(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		if err := e.moveFile(ctx, f, newPath+strings.TrimPrefix(f, oldPath)); err != nil {
			return err
		}
	}

	sort.Slice(oldDirs, func(i, j int) bool { return len(oldDirs[i]) > len(oldDirs[j]) })
	for _, d := range oldDirs {
		if err := e.phys.deleteDir(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// ListAll returns every entry except the root, with resolved metadata and
// pin state, sorted lexicographically by path.
func (e *Engine) ListAll(ctx context.Context) ([]types.EntryInfo, error) {
	entries := make([]types.EntryInfo, 0)

	dirs, err := e.phys.dirPaths(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if d == types.Root {
			continue
		}
		entries = append(entries, types.EntryInfo{
			Path:   d,
			Kind:   types.KindDirectory,
			Pinned: e.pinned(d),
		})
	}

	files, err := e.phys.filePaths(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		rec, err := e.phys.getFile(ctx, f)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		entries = append(entries, types.EntryInfo{
			Path:       f,
			Kind:       types.KindFile,
			Size:       len(rec.Content),
			ModifiedAt: rec.ModifiedAt,
			AccessedAt: rec.AccessedAt,
			Pinned:     e.pinned(f),
			Summary:    rec.Summary,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (e *Engine) pinned(path string) bool {
	return e.pins != nil && e.pins.IsPinned(path)
}

// GetSummary returns the stored summary of a memory file.
func (e *Engine) GetSummary(ctx context.Context, path string) (string, error) {
	norm, err := e.checkPath(path)
	if err != nil {
		return "", err
	}
	rec, err := e.getExisting(ctx, norm, "summarize")
	if err != nil {
		return "", err
	}
	return rec.Summary, nil
}

// SetSummary stores opaque summary text for a memory file.
func (e *Engine) SetSummary(ctx context.Context, path, summary string) error {
	norm, err := e.checkPath(path)
	if err != nil {
		return err
	}
	if _, err := e.getExisting(ctx, norm, "summarize"); err != nil {
		return err
	}
	return e.phys.putSummary(ctx, norm, summary)
}

// ClearSummary removes any stored summary. Clearing a missing file is a
// no-op: summaries are cleaned up best-effort after deletes.
func (e *Engine) ClearSummary(ctx context.Context, path string) error {
	norm, err := e.checkPath(path)
	if err != nil {
		return err
	}
	kind, err := e.resolveKind(ctx, norm)
	if err != nil {
		return err
	}
	if kind != types.KindFile {
		e.debugf("clear summary for absent %s: nothing to do", norm)
		return nil
	}
	if err := e.phys.putSummary(ctx, norm, ""); err != nil {
		e.warnf("best-effort summary cleanup for %s failed: %v", norm, err)
	}
	return nil
}

var _ Backend = (*Engine)(nil)
var _ SummaryStore = (*Engine)(nil)
