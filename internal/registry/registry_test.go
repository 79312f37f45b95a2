package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_ListEmptyWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "projects.json")
	r, err := Open(path)
	require.NoError(t, err)

	entries, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpsert_AddsAndReplacesByRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	r, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, r.Upsert(Entry{Root: "/proj/a", SessionCount: 1}))
	require.NoError(t, r.Upsert(Entry{Root: "/proj/b", SessionCount: 2}))
	require.NoError(t, r.Upsert(Entry{Root: "/proj/a", SessionCount: 5}))

	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/proj/a", entries[0].Root)
	assert.Equal(t, 5, entries[0].SessionCount)
}

func TestRemove_DeletesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	r, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, r.Upsert(Entry{Root: "/proj/a"}))
	require.NoError(t, r.Upsert(Entry{Root: "/proj/b"}))
	require.NoError(t, r.Remove("/proj/a"))

	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/proj/b", entries[0].Root)
}

func TestList_SortedByRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	r, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, r.Upsert(Entry{Root: "/z"}))
	require.NoError(t, r.Upsert(Entry{Root: "/a"}))

	entries, err := r.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/a", entries[0].Root)
	assert.Equal(t, "/z", entries[1].Root)
}
