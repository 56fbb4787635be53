package branch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHead(t *testing.T, dir, content string) {
	t.Helper()
	gitDir := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0750))
	// Mimic git: write a temp file and rename it over HEAD.
	tmp := filepath.Join(gitDir, "HEAD.lock")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0600))
	require.NoError(t, os.Rename(tmp, filepath.Join(gitDir, "HEAD")))
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "", Detect(dir), "non-git workspace")

	writeHead(t, dir, "ref: refs/heads/main\n")
	assert.Equal(t, "main", Detect(dir))

	writeHead(t, dir, "ref: refs/heads/feature/login\n")
	assert.Equal(t, "feature/login", Detect(dir))

	writeHead(t, dir, "b8c2f4a9d1e0c3b2a1f0e9d8c7b6a5f4e3d2c1b0\n")
	assert.Equal(t, "", Detect(dir), "detached HEAD")
}

func TestWatcherSeesBranchSwitch(t *testing.T) {
	dir := t.TempDir()
	writeHead(t, dir, "ref: refs/heads/main\n")

	changes := make(chan string, 4)
	w, err := NewWatcher(dir, nil, func(branch string) { changes <- branch })
	require.NoError(t, err)
	defer w.Close()

	writeHead(t, dir, "ref: refs/heads/develop\n")

	select {
	case got := <-changes:
		assert.Equal(t, "develop", got)
	case <-time.After(3 * time.Second):
		t.Fatal("no branch-change notification")
	}
}

func TestWatcherIgnoresNoOpRewrites(t *testing.T) {
	dir := t.TempDir()
	writeHead(t, dir, "ref: refs/heads/main\n")

	changes := make(chan string, 4)
	w, err := NewWatcher(dir, nil, func(branch string) { changes <- branch })
	require.NoError(t, err)
	defer w.Close()

	// Rewriting HEAD with the same branch must not notify.
	writeHead(t, dir, "ref: refs/heads/main\n")

	select {
	case got := <-changes:
		t.Fatalf("unexpected notification %q", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherRequiresGitDir(t *testing.T) {
	_, err := NewWatcher(t.TempDir(), nil, func(string) {})
	require.Error(t, err)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeHead(t, dir, "ref: refs/heads/main\n")

	w, err := NewWatcher(dir, nil, func(string) {})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
