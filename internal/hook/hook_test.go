package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorybank/membank/internal/store"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

const userLine = `{"type":"user","message":{"role":"user","content":"hello there"},"timestamp":1}`
const assistantLine = `{"type":"assistant","message":{"role":"assistant","content":"hi, how can I help"},"timestamp":2}`

func TestParseInput_DecodesFields(t *testing.T) {
	r := strings.NewReader(`{"transcript_path":"/a/b","session_id":"s1","cwd":"/a"}`)
	in, err := ParseInput(r)
	require.NoError(t, err)
	assert.Equal(t, "/a/b", in.TranscriptPath)
	assert.Equal(t, "s1", in.SessionID)
	assert.Equal(t, "/a", in.Cwd)
}

func TestHandle_CreatesSessionAndChunksOnFirstCall(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	transcript := writeTranscript(t, userLine, assistantLine)
	in := Input{TranscriptPath: transcript, SessionID: "agent-1", Cwd: "/proj"}

	require.NoError(t, Handle(context.Background(), st, in, 1000))

	hooksState, err := st.LoadHooksState()
	require.NoError(t, err)
	sessionID, ok := hooksState["agent-1"]
	require.True(t, ok)

	chunks, err := st.ReadChunks(sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestHandle_RechunksFromScratchOnContinuation(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	transcript := writeTranscript(t, userLine, assistantLine)
	in := Input{TranscriptPath: transcript, SessionID: "agent-1", Cwd: "/proj"}
	require.NoError(t, Handle(context.Background(), st, in, 1000))

	hooksState, err := st.LoadHooksState()
	require.NoError(t, err)
	firstSessionID := hooksState["agent-1"]

	// The host rewrites transcript_path with the conversation's growing
	// history before the next Stop event.
	longerLine := `{"type":"assistant","message":{"role":"assistant","content":"a follow-up turn"},"timestamp":3}`
	require.NoError(t, os.WriteFile(transcript, []byte(strings.Join([]string{userLine, assistantLine, longerLine}, "\n")+"\n"), 0644))

	require.NoError(t, Handle(context.Background(), st, in, 1010))

	hooksState, err = st.LoadHooksState()
	require.NoError(t, err)
	assert.Equal(t, firstSessionID, hooksState["agent-1"], "continuation must reuse the same session")

	chunks, err := st.ReadChunks(firstSessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, chunks[0].ChunkIndex, "re-chunking renumbers from zero rather than appending")
}

func TestHandle_MissingTranscriptPathErrors(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	err = Handle(context.Background(), st, Input{SessionID: "s1"}, 1000)
	assert.Error(t, err)
}

func TestHandle_NonexistentTranscriptErrors(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	err = Handle(context.Background(), st, Input{TranscriptPath: "/does/not/exist", SessionID: "s1"}, 1000)
	assert.Error(t, err)
}
