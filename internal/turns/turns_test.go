package turns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_BasicUserAssistant(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","role":"user","timestamp":1000,"content":"hi there"}`,
		`{"type":"assistant","role":"assistant","timestamp":2000,"content":"hello!"}`,
	}, "\n")

	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, RoleUser, ts[0].Role)
	assert.Equal(t, "hi there", ts[0].Text)
	assert.Equal(t, int64(1000), ts[0].Timestamp)
	assert.Equal(t, RoleAssistant, ts[1].Role)
	assert.Equal(t, "hello!", ts[1].Text)
}

func TestExtract_SkipsToolAndThinkingRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","role":"user","timestamp":1,"content":"do it"}`,
		`{"type":"tool_use","role":"assistant","timestamp":2,"content":"some tool call"}`,
		`{"type":"thinking","role":"assistant","timestamp":3,"content":"pondering"}`,
		`{"type":"tool_result","role":"user","timestamp":4,"content":"tool output"}`,
		`{"type":"assistant","role":"assistant","timestamp":5,"content":"done"}`,
	}, "\n")

	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "do it", ts[0].Text)
	assert.Equal(t, "done", ts[1].Text)
}

func TestExtract_SkipsSidechainAndMeta(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","role":"user","timestamp":1,"content":"real","isSidechain":false,"isMeta":false}`,
		`{"type":"user","role":"user","timestamp":2,"content":"side","isSidechain":true}`,
		`{"type":"user","role":"user","timestamp":3,"content":"meta","isMeta":true}`,
	}, "\n")

	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "real", ts[0].Text)
}

func TestExtract_CarriesTimestampForward(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","role":"user","timestamp":500,"content":"first"}`,
		`{"type":"assistant","role":"assistant","content":"no own timestamp"}`,
	}, "\n")

	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, int64(500), ts[1].Timestamp)
}

func TestExtract_UnwrapsNestedMessage(t *testing.T) {
	input := `{"type":"assistant","timestamp":1,"message":{"role":"assistant","content":"nested text"}}`
	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "nested text", ts[0].Text)
}

func TestExtract_MixedContentArrayConcatenatesTextParts(t *testing.T) {
	input := `{"type":"assistant","role":"assistant","timestamp":1,"content":[{"type":"text","text":"part one"},{"type":"tool_use","text":"ignored"},{"type":"text","text":"part two"}]}`
	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "part one\n\npart two", ts[0].Text)
}

func TestExtract_SkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`not json at all`,
		`{"type":"user","role":"user","timestamp":1,"content":"ok"}`,
	}, "\n")
	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "ok", ts[0].Text)
}

func TestExtract_EmptyTranscriptErrors(t *testing.T) {
	_, err := Extract(strings.NewReader(""), false)
	assert.Error(t, err)
}

func TestExtract_AllMalformedErrors(t *testing.T) {
	_, err := Extract(strings.NewReader("garbage\nmore garbage\n"), false)
	assert.Error(t, err)
}

func TestExtract_SkipsUnknownRole(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","role":"system","timestamp":1,"content":"ignored"}`,
		`{"type":"user","role":"user","timestamp":2,"content":"kept"}`,
	}, "\n")
	ts, err := Extract(strings.NewReader(input), false)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "kept", ts[0].Text)
}
