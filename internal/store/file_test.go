package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_ReloadsFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = st.AddResult(ctx, rec("Acme Corp", "John Doe", "john@acme.com", 0.8, baseTime))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "acme_corp_john_doe.json"))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.GetCompanyResults(ctx, "acme corp")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "john@acme.com", got[0].Email)
}

func TestFileStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	st, err := NewFileStore(dir)
	require.NoError(t, err)
	all, err := st.AllResults(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStore_SanitizesKeyPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = st.AddResult(ctx, rec("A/B Partners", "John Doe", "john@ab.com", 0.8, baseTime))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "a-b_partners_john_doe.json"))

	removed, err := st.RemoveResult(ctx, ResultKey("A/B Partners", "John Doe"))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, filepath.Join(dir, "a-b_partners_john_doe.json"))
}
