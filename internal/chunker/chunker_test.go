package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/turns"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestChunkTurns_ScenarioTwoTurnsSplitMidSecond(t *testing.T) {
	// turn1 ~200 tokens, turn2 ~400 tokens, max_tokens=512, overlap=50.
	// words(n) is 5n-1 characters, so words(160) is ~200 tokens and
	// words(320) is ~400 tokens.
	turn1 := turns.Turn{Role: turns.RoleUser, Text: words(160), Timestamp: 1000}
	turn2 := turns.Turn{Role: turns.RoleAssistant, Text: words(320), Timestamp: 2000}

	chunks := ChunkTurns("sess-1", []turns.Turn{turn1, turn2}, Options{MaxTokens: 512, OverlapTokens: 50}, 0)

	require.Len(t, chunks, 2, "expected exactly two chunks")
	assert.LessOrEqual(t, chunks[0].TokenCount, 512)
	assert.LessOrEqual(t, chunks[1].TokenCount, 512)

	assert.True(t, strings.Contains(chunks[0].Text, "Assistant:"),
		"chunk 0 should end within the second turn")
	overlap := overlapTail(chunks[0].Text, 50)
	require.NotEmpty(t, overlap)
	assert.True(t, strings.HasPrefix(chunks[1].Text, overlap),
		"chunk 1 should begin with overlap drawn from chunk 0's tail")
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestChunkTurns_ContiguousIndexAndTokenBudget(t *testing.T) {
	var ts []turns.Turn
	for i := 0; i < 20; i++ {
		role := turns.RoleUser
		if i%2 == 1 {
			role = turns.RoleAssistant
		}
		ts = append(ts, turns.Turn{Role: role, Text: words(80), Timestamp: int64(i * 1000)})
	}

	chunks := ChunkTurns("sess-2", ts, DefaultOptions(), 0)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex, "chunk_index must be contiguous starting at 0")
		assert.LessOrEqual(t, c.TokenCount, DefaultOptions().MaxTokens, "chunk must not exceed max_tokens")
		assert.Equal(t, store.ChunkSession, c.SourceType)
	}
}

func TestChunkTurns_StartIndexOffsetForAppend(t *testing.T) {
	ts := []turns.Turn{
		{Role: turns.RoleUser, Text: words(40), Timestamp: 1},
		{Role: turns.RoleAssistant, Text: words(40), Timestamp: 2},
	}
	chunks := ChunkTurns("sess-3", ts, DefaultOptions(), 5)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 5, chunks[0].ChunkIndex)
}

func TestChunkTurns_Idempotent(t *testing.T) {
	ts := []turns.Turn{
		{Role: turns.RoleUser, Text: words(300), Timestamp: 1},
		{Role: turns.RoleAssistant, Text: words(300), Timestamp: 2},
	}
	a := ChunkTurns("sess-4", ts, DefaultOptions(), 0)
	b := ChunkTurns("sess-4", ts, DefaultOptions(), 0)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Text, b[i].Text)
		assert.Equal(t, a[i].TokenCount, b[i].TokenCount)
	}
}

func TestChunkTurns_EmptyInput(t *testing.T) {
	chunks := ChunkTurns("sess-5", nil, DefaultOptions(), 0)
	assert.Empty(t, chunks)
}

func TestSplitAtBudget(t *testing.T) {
	text := "Paragraph one has some words.\n\nParagraph two has more words here to read."
	head, tail := splitAtBudget(text, 8) // ~32 chars
	assert.NotEmpty(t, head)
	// The paragraph break the split lands on belongs to neither side.
	assert.Equal(t, "Paragraph one has some words.", head)
	assert.Equal(t, "Paragraph two has more words here to read.", tail)
}

func TestOverlapTail_ParagraphBoundary(t *testing.T) {
	text := "First paragraph of content here.\n\nSecond paragraph tail content for overlap."
	// 12 tokens is 48 characters, which reaches back past the paragraph
	// break; the tail starts just after it.
	tail := overlapTail(text, 12)
	assert.True(t, strings.HasSuffix(text, tail))
	assert.Equal(t, "Second paragraph tail content for overlap.", tail)
}

func TestQuality_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Quality(""))
}

func TestEstimateTokens_MinimumOne(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens(""))
}

func TestGroupEpisodes_IdleGapSplits(t *testing.T) {
	events := []store.Event{
		{Timestamp: 0, Stream: store.StreamOut, Text: "first line\n"},
		{Timestamp: 10, Stream: store.StreamOut, Text: "still close\n"},
		{Timestamp: 100, Stream: store.StreamOut, Text: "long after idle gap\n"},
	}
	episodes := groupEpisodes(events)
	require.Len(t, episodes, 2, "a 90s gap exceeds the 30s idle threshold")
	assert.Len(t, episodes[0], 2)
	assert.Len(t, episodes[1], 1)
}

func TestGroupEpisodes_FormFeedSplits(t *testing.T) {
	events := []store.Event{
		{Timestamp: 0, Stream: store.StreamOut, Text: "before clear" + formFeed + "after clear"},
	}
	episodes := groupEpisodes(events)
	require.Len(t, episodes, 2)
	assert.Equal(t, "before clear", episodes[0][0].Text)
	assert.Equal(t, "after clear", episodes[1][0].Text)
}

func TestChunkEvents_SanitizesAndChunksEpisodes(t *testing.T) {
	events := []store.Event{
		{Timestamp: 1000, Stream: store.StreamOut, Text: "\x1b[2K\r" + words(50) + "\n"},
		{Timestamp: 1005, Stream: store.StreamOut, Text: "? for shortcuts\n"},
		{Timestamp: 2000, Stream: store.StreamOut, Text: words(50) + "\n"}, // new episode, 995s gap
	}
	chunks := ChunkEvents("sess-pty", events, DefaultOptions(), 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, store.ChunkSession, chunks[0].SourceType)
	assert.Equal(t, int64(1000), chunks[0].StartTS)
	assert.Equal(t, int64(2000), chunks[1].StartTS)
	assert.NotContains(t, chunks[0].Text, "? for shortcuts", "chrome lines must be noise-filtered")
	assert.NotContains(t, chunks[0].Text, "\x1b", "ANSI escapes must be sanitized")
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestChunkEvents_EmptyInput(t *testing.T) {
	assert.Empty(t, ChunkEvents("sess-pty-empty", nil, DefaultOptions(), 0))
}

func TestChunkText_TagsArtifactSourceType(t *testing.T) {
	chunks := ChunkText("plan-abc", store.ChunkPlan, words(100), 5000, DefaultOptions())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, store.ChunkPlan, c.SourceType)
		assert.Equal(t, "plan-abc", c.SessionID)
		assert.Equal(t, int64(5000), c.StartTS)
	}
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestChunkText_SplitsOversizedDocument(t *testing.T) {
	chunks := ChunkText("task-xyz", store.ChunkTask, words(2000), 1, Options{MaxTokens: 512, OverlapTokens: 50})
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, c.TokenCount, 512)
	}
}
