package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/vectorindex"
)

func buildIndex(t *testing.T, f *oracle.Fake, texts ...string) *vectorindex.Index {
	dir := t.TempDir()
	idx, err := vectorindex.Open(dir)
	require.NoError(t, err)

	var chunks []store.Chunk
	for i, text := range texts {
		chunks = append(chunks, store.Chunk{
			SessionID: "s1", ChunkIndex: i, SourceType: store.ChunkSession,
			Text: text, TokenCount: 1, StartTS: int64(1000 + i),
		})
	}
	_, err = idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)
	return idx
}

func TestRetrieve_TopKOrderedDescending(t *testing.T) {
	f := oracle.NewFake()
	idx := buildIndex(t, f, "alpha", "beta", "gamma")

	results, err := Retrieve(context.Background(), idx, f, "alpha", Filters{}, Options{TopK: 2, Now: 2000})
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 2)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "alpha", results[0].Text)
}

func TestRetrieve_DecayMonotone(t *testing.T) {
	f := oracle.NewFake()
	// Two identical-content chunks, different ages.
	dir := t.TempDir()
	idx, err := vectorindex.Open(dir)
	require.NoError(t, err)

	now := int64(30 * 86400)
	chunks := []store.Chunk{
		{SessionID: "s1", ChunkIndex: 0, SourceType: store.ChunkSession, Text: "same text", StartTS: now},
		{SessionID: "s1", ChunkIndex: 1, SourceType: store.ChunkSession, Text: "same text", StartTS: 0 + 1},
	}
	_, err = idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)

	results, err := Retrieve(context.Background(), idx, f, "same text", Filters{}, Options{
		TopK: 2, DecayEnabled: true, HalfLifeDays: 14, Now: now,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	// Equal cosine scores, so decay alone decides: the newer chunk ranks first.
	assert.Equal(t, 0, results[0].Key.ChunkIndex)
	assert.Less(t, results[1].Score, results[0].Score)
}

func TestRetrieve_SourceTypeFilter(t *testing.T) {
	f := oracle.NewFake()
	dir := t.TempDir()
	idx, err := vectorindex.Open(dir)
	require.NoError(t, err)

	chunks := []store.Chunk{
		{SessionID: "s1", ChunkIndex: 0, SourceType: store.ChunkSession, Text: "session text"},
		{ChunkIndex: 0, SourceType: store.ChunkPlan, Text: "plan text"},
	}
	_, err = idx.Build(context.Background(), chunks, f)
	require.NoError(t, err)

	plan := store.ChunkPlan
	results, err := Retrieve(context.Background(), idx, f, "text", Filters{SourceType: &plan}, Options{TopK: 5, Now: 1})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, store.ChunkPlan, r.Key.SourceType)
	}
}

func TestRetrieve_RerankFallsBackOnFailure(t *testing.T) {
	f := oracle.NewFake()
	idx := buildIndex(t, f, "alpha", "beta", "gamma")
	f.FailChat = assertErr{}

	results, err := Retrieve(context.Background(), idx, f, "alpha", Filters{}, Options{TopK: 2, Rerank: true, Now: 1})
	require.NoError(t, err, "rerank failure must not fail the whole retrieve")
	assert.LessOrEqual(t, len(results), 2)
}

type assertErr struct{}

func (assertErr) Error() string { return "rerank unavailable" }
