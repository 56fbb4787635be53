package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoresRealTree(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	eng, err := NewDisk(dir)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "/memories/projects/alpha.md", "# Alpha\n")
	require.NoError(t, err)

	// The virtual namespace is a plain directory tree, inspectable with
	// ordinary tools.
	raw, err := os.ReadFile(filepath.Join(dir, "memories", "projects", "alpha.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Alpha\n", string(raw))

	fi, err := os.Stat(filepath.Join(dir, "memories", "projects"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestDiskDeleteRemovesFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	eng, err := NewDisk(dir)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "/memories/a/b.txt", "x")
	require.NoError(t, err)
	_, err = eng.Delete(ctx, "/memories/a")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "memories", "a"))
	assert.True(t, os.IsNotExist(err))

	// The root itself survives.
	fi, err := os.Stat(filepath.Join(dir, "memories"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestDiskPicksUpExternallyWrittenFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	eng, err := NewDisk(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "memories", "ext"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memories", "ext", "note.txt"), []byte("outside edit"), 0600))

	got, err := eng.ReadRaw(ctx, "/memories/ext/note.txt")
	require.NoError(t, err)
	assert.Equal(t, "outside edit", got)

	out, err := eng.View(ctx, "/memories", nil)
	require.NoError(t, err)
	assert.Equal(t, "Directory: /memories\n- ext/", out)
}

func TestDiskRenamePreservesModifyTime(t *testing.T) {
	ctx := context.Background()
	eng, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = eng.Create(ctx, "/memories/old.txt", "x")
	require.NoError(t, err)
	entries, err := eng.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	before := entries[0].ModifiedAt

	time.Sleep(50 * time.Millisecond)
	_, err = eng.Rename(ctx, "/memories/old.txt", "/memories/new.txt")
	require.NoError(t, err)

	entries, err = eng.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.WithinDuration(t, before, entries[0].ModifiedAt, 10*time.Millisecond)
}

func TestDiskSummarySidecar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	eng, err := NewDisk(dir)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "/memories/n.txt", "x")
	require.NoError(t, err)
	require.NoError(t, eng.SetSummary(ctx, "/memories/n.txt", "short note"))

	raw, err := os.ReadFile(filepath.Join(dir, "summaries.json"))
	require.NoError(t, err)
	summaries := make(map[string]string)
	require.NoError(t, json.Unmarshal(raw, &summaries))
	assert.Equal(t, "short note", summaries["/memories/n.txt"])

	require.NoError(t, eng.ClearSummary(ctx, "/memories/n.txt"))
	raw, err = os.ReadFile(filepath.Join(dir, "summaries.json"))
	require.NoError(t, err)
	summaries = make(map[string]string)
	require.NoError(t, json.Unmarshal(raw, &summaries))
	assert.NotContains(t, summaries, "/memories/n.txt")
}

func TestDiskRealPathJail(t *testing.T) {
	eng, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	m := eng.phys.(*diskMedium)

	real, err := m.realPath("/memories/sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.base, "sub", "file.txt"), real)

	root, err := m.realPath("/memories")
	require.NoError(t, err)
	assert.Equal(t, m.base, root)
}
