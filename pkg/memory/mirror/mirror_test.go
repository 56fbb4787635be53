package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/recall/pkg/memory/store"
)

type captureTarget struct {
	doc  string
	fail bool
}

func (t *captureTarget) Write(_ context.Context, doc string) error {
	if t.fail {
		return errors.New("target unavailable")
	}
	t.doc = doc
	return nil
}

func seedStore(t *testing.T) *store.Engine {
	t.Helper()
	ctx := context.Background()
	eng := store.NewMemory()
	_, err := eng.Create(ctx, "/memories/notes.txt", "line one\nline two\n")
	require.NoError(t, err)
	_, err = eng.Create(ctx, "/memories/projects/alpha.md", "# Alpha")
	require.NoError(t, err)
	require.NoError(t, eng.SetSummary(ctx, "/memories/notes.txt", "scratch notes"))
	return eng
}

func TestSyncRendersDocument(t *testing.T) {
	eng := seedStore(t)
	target := &captureTarget{}
	s, err := NewSyncer(eng, target, Config{}, nil)
	require.NoError(t, err)

	s.Sync(context.Background())

	want := "# Memory Mirror\n" +
		"\n## /memories/notes.txt\n" +
		"\n> scratch notes\n" +
		"\n```text\nline one\nline two\n```\n" +
		"\n## /memories/projects/alpha.md\n" +
		"\n```text\n# Alpha\n```\n"
	assert.Equal(t, want, target.doc)
}

func TestSyncEmptyStore(t *testing.T) {
	target := &captureTarget{}
	s, err := NewSyncer(store.NewMemory(), target, Config{}, nil)
	require.NoError(t, err)

	s.Sync(context.Background())
	assert.Equal(t, "# Memory Mirror\n", target.doc)
}

func TestIncludeExcludeFilters(t *testing.T) {
	eng := seedStore(t)
	target := &captureTarget{}
	s, err := NewSyncer(eng, target, Config{
		Include: []string{"/memories/**"},
		Exclude: []string{"/memories/projects/**"},
	}, nil)
	require.NoError(t, err)

	s.Sync(context.Background())
	assert.Contains(t, target.doc, "## /memories/notes.txt")
	assert.NotContains(t, target.doc, "alpha.md")
}

func TestExcludeWinsOverInclude(t *testing.T) {
	eng := seedStore(t)
	target := &captureTarget{}
	s, err := NewSyncer(eng, target, Config{
		Include: []string{"/memories/notes.txt"},
		Exclude: []string{"/memories/notes.txt"},
	}, nil)
	require.NoError(t, err)

	s.Sync(context.Background())
	assert.Equal(t, "# Memory Mirror\n", target.doc)
}

func TestInvalidPatternIsAnError(t *testing.T) {
	_, err := NewSyncer(store.NewMemory(), &captureTarget{}, Config{Include: []string{"["}}, nil)
	require.Error(t, err)
}

func TestSyncSwallowsTargetFailure(t *testing.T) {
	eng := seedStore(t)
	s, err := NewSyncer(eng, &captureTarget{fail: true}, Config{}, nil)
	require.NoError(t, err)

	// Must not panic or propagate: a broken mirror never fails the store.
	s.Sync(context.Background())
}

func TestFileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.md")
	target := &FileTarget{Path: path}
	require.NoError(t, target.Write(context.Background(), "# Memory Mirror\n"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Memory Mirror\n", string(raw))
}
