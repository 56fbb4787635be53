package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) (*FileVault, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vault")
	vault, err := NewFileVault(dir, []byte("test master key"))
	require.NoError(t, err)
	return vault, dir
}

func TestFileVaultRoundTrip(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault(t)

	_, ok, err := vault.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, vault.Set(ctx, "k", []byte("secret payload")))
	got, ok, err := vault.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("secret payload"), got)

	require.NoError(t, vault.Set(ctx, "k", []byte("replaced")))
	got, _, err = vault.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got)

	require.NoError(t, vault.Delete(ctx, "k"))
	_, ok, err = vault.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is not an error.
	assert.NoError(t, vault.Delete(ctx, "k"))
}

func TestFileVaultNothingReadableOnDisk(t *testing.T) {
	ctx := context.Background()
	vault, dir := newTestVault(t)

	require.NoError(t, vault.Set(ctx, "memories/secret-note", []byte("the launch codes")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Neither the logical key nor the plaintext appears in the file or its
	// name.
	name := entries[0].Name()
	assert.NotContains(t, name, "secret-note")
	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "launch codes")
}

func TestFileVaultWrongMasterKeyFailsToUnseal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vault")

	vault, err := NewFileVault(dir, []byte("right key"))
	require.NoError(t, err)
	require.NoError(t, vault.Set(ctx, "k", []byte("value")))

	other, err := NewFileVault(dir, []byte("wrong key"))
	require.NoError(t, err)
	_, _, err = other.Get(ctx, "k")
	require.Error(t, err)
}

func TestFileVaultRejectsEmptyMasterKey(t *testing.T) {
	_, err := NewFileVault(t.TempDir(), nil)
	require.Error(t, err)
}

func TestSecretBackendKeepsIndexConsistent(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault(t)
	medium := &secretMedium{vault: vault}
	eng := newEngine(medium)

	_, err := eng.Create(ctx, "/memories/a/n.txt", "content")
	require.NoError(t, err)

	idx, err := medium.loadIndex(ctx)
	require.NoError(t, err)
	assert.Contains(t, idx.Files, "/memories/a/n.txt")
	assert.Contains(t, idx.Dirs, "/memories/a")

	_, err = eng.Delete(ctx, "/memories/a")
	require.NoError(t, err)

	idx, err = medium.loadIndex(ctx)
	require.NoError(t, err)
	assert.Empty(t, idx.Files)
	assert.Empty(t, idx.Dirs)

	// The content secret is gone too, not just the index entry.
	_, ok, err := vault.Get(ctx, contentKey("/memories/a/n.txt"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretBackendDetectsIndexDrift(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault(t)
	eng := NewSecret(vault)

	_, err := eng.Create(ctx, "/memories/n.txt", "content")
	require.NoError(t, err)

	// Losing the content while the index still references it must surface
	// as an error, not as silent corruption.
	require.NoError(t, vault.Delete(ctx, contentKey("/memories/n.txt")))
	_, err = eng.ReadRaw(ctx, "/memories/n.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata index references")
}
