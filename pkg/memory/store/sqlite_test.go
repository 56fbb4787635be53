package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/recall/pkg/memory/types"
)

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	stateDir := t.TempDir()

	eng, err := NewSQLite(stateDir, "session")
	require.NoError(t, err)
	_, err = eng.Create(ctx, "/memories/persist/notes.txt", "survives restarts")
	require.NoError(t, err)
	require.NoError(t, eng.SetSummary(ctx, "/memories/persist/notes.txt", "durable"))
	require.NoError(t, eng.Close())

	eng, err = NewSQLite(stateDir, "session")
	require.NoError(t, err)
	defer eng.Close()

	got, err := eng.ReadRaw(ctx, "/memories/persist/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "survives restarts", got)

	summary, err := eng.GetSummary(ctx, "/memories/persist/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "durable", summary)

	out, err := eng.View(ctx, "/memories", nil)
	require.NoError(t, err)
	assert.Equal(t, "Directory: /memories\n- persist/", out)
}

func TestSQLiteIdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	stateDir := t.TempDir()

	a, err := NewSQLite(stateDir, "identity-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLite(stateDir, "identity-b")
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Create(ctx, "/memories/only-a.txt", "x")
	require.NoError(t, err)

	out, err := b.View(ctx, "/memories", nil)
	require.NoError(t, err)
	assert.Equal(t, "Directory: /memories\n(empty)", out)
}

func TestSQLiteRejectsEmptyIdentity(t *testing.T) {
	_, err := NewSQLite(t.TempDir(), "")
	require.Error(t, err)
}

func TestIdentityKey(t *testing.T) {
	key := IdentityKey("/home/dev/project", "main")
	assert.True(t, strings.HasPrefix(key, "main-"), "key %q", key)
	assert.Len(t, key, len("main-")+12)

	// Deterministic, and distinct across workspace or branch.
	assert.Equal(t, key, IdentityKey("/home/dev/project", "main"))
	assert.NotEqual(t, key, IdentityKey("/home/dev/other", "main"))
	assert.NotEqual(t, key, IdentityKey("/home/dev/project", "develop"))
}

func TestIdentityKeySanitizesHostileBranchNames(t *testing.T) {
	tests := []struct {
		branch string
		slug   string
	}{
		{"", "default"},
		{"feature/login", "feature-login"},
		{"../../etc", "..-..-etc"},
		{"UPPER_case.1", "upper_case.1"},
		{"///", "default"},
		{strings.Repeat("verylongbranch", 10), strings.Repeat("verylongbranch", 10)[:32]},
	}
	for _, tt := range tests {
		key := IdentityKey("/ws", tt.branch)
		slug := key[:strings.LastIndex(key, "-")]
		assert.Equal(t, tt.slug, slug, "branch %q", tt.branch)
		assert.NotContains(t, key, "/", "a key must stay a single path segment")
	}
}

func TestBranchAwarePartitionsByBranch(t *testing.T) {
	ctx := context.Background()
	stateDir := t.TempDir()

	b := NewBranchAware(stateDir, "/home/dev/project", "main", nil)
	defer b.Close()

	_, err := b.Create(ctx, "/memories/main-only.txt", "from main")
	require.NoError(t, err)

	b.OnBranchChange("feature/login")
	assert.Equal(t, "feature/login", b.Branch())

	out, err := b.View(ctx, "/memories", nil)
	require.NoError(t, err)
	assert.Equal(t, "Directory: /memories\n(empty)", out, "new branch starts from an empty namespace")

	_, err = b.Create(ctx, "/memories/feature-only.txt", "from feature")
	require.NoError(t, err)

	// Switching back re-opens the original partition untouched.
	b.OnBranchChange("main")
	got, err := b.ReadRaw(ctx, "/memories/main-only.txt")
	require.NoError(t, err)
	assert.Equal(t, "from main", got)

	_, err = b.ReadRaw(ctx, "/memories/feature-only.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBranchAwareSameBranchIsNoOp(t *testing.T) {
	ctx := context.Background()
	b := NewBranchAware(t.TempDir(), "/ws", "main", nil)
	defer b.Close()

	_, err := b.Create(ctx, "/memories/n.txt", "x")
	require.NoError(t, err)

	b.OnBranchChange("main")
	got, err := b.ReadRaw(ctx, "/memories/n.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestBranchAwareCreatesOneDatabasePerBranch(t *testing.T) {
	ctx := context.Background()
	stateDir := t.TempDir()

	b := NewBranchAware(stateDir, "/ws", "main", nil)
	defer b.Close()

	_, err := b.Create(ctx, "/memories/a.txt", "x")
	require.NoError(t, err)
	b.OnBranchChange("develop")
	_, err = b.Create(ctx, "/memories/b.txt", "y")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(stateDir, "*.db"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	for _, m := range matches {
		_, err := os.Stat(m)
		require.NoError(t, err)
	}
}
