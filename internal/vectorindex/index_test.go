package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/store"
)

func chunk(sessionID string, i int, text string) store.Chunk {
	return store.Chunk{SessionID: sessionID, ChunkIndex: i, SourceType: store.ChunkSession, Text: text, TokenCount: 1}
}

func TestBuildAndSearch_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)

	f := oracle.NewFake()
	chunks := []store.Chunk{
		chunk("s1", 0, "alpha"),
		chunk("s1", 1, "beta"),
		chunk("s1", 2, "gamma"),
	}

	n, err := idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	queryVec, err := f.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), queryVec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alpha", hits[0].Metadata.Text)
}

func TestBuild_SkipsAlreadyIndexedChunks(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)
	f := oracle.NewFake()

	chunks := []store.Chunk{chunk("s1", 0, "alpha"), chunk("s1", 1, "beta")}
	n, err := idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-running Build with the same chunks plus one new one should only
	// insert the new one.
	chunks = append(chunks, chunk("s1", 2, "gamma"))
	n, err = idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBuild_GrowAndRequeryTopUnchanged(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)
	f := oracle.NewFake()

	chunks := []store.Chunk{chunk("s1", 0, "alpha"), chunk("s1", 1, "beta"), chunk("s1", 2, "gamma")}
	_, err = idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)

	queryVec, err := f.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	before, err := idx.Search(context.Background(), queryVec, 1)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "alpha", before[0].Metadata.Text)

	_, err = idx.Build(context.Background(), []store.Chunk{chunk("s1", 3, "delta")}, f)
	require.NoError(t, err)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	after, err := idx.Search(context.Background(), queryVec, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "alpha", after[0].Metadata.Text)
}

func TestOpen_RecoversFromCrashTruncatesDanglingVector(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)
	f := oracle.NewFake()

	_, err = idx.Build(context.Background(), []store.Chunk{chunk("s1", 0, "alpha")}, f)
	require.NoError(t, err)

	// Simulate a crash mid-build: append an extra vector with no
	// matching metadata line.
	vf, err := os.OpenFile(filepath.Join(dir, "vectors.bin"), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	dim, err := idx.Dim()
	require.NoError(t, err)
	require.NoError(t, writeVector(vf, make([]float32, dim)))
	require.NoError(t, vf.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "vectors.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(dim*floatSize), info.Size())

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuild_DimMismatchErrors(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)

	f1 := &oracle.Fake{Dim: 4}
	_, err = idx.Build(context.Background(), []store.Chunk{chunk("s1", 0, "alpha")}, f1)
	require.NoError(t, err)

	f2 := &oracle.Fake{Dim: 8}
	_, err = idx.Build(context.Background(), []store.Chunk{chunk("s1", 1, "beta")}, f2)
	assert.Error(t, err)
}
