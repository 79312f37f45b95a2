package pack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func seedSession(t *testing.T, s *store.Store, command string, started int64, chunkTexts ...string) string {
	t.Helper()
	meta, err := s.CreateSession(store.SourcePTY, command, started, nil)
	require.NoError(t, err)

	chunks := make([]store.Chunk, len(chunkTexts))
	for i, text := range chunkTexts {
		chunks[i] = store.Chunk{
			SessionID:  meta.ID,
			ChunkIndex: i,
			SourceType: store.ChunkSession,
			Text:       text,
			TokenCount: 10,
			StartTS:    started + int64(i),
		}
	}
	if len(chunks) > 0 {
		require.NoError(t, s.AppendChunks(meta.ID, chunks))
	}
	require.NoError(t, s.FinalizeSession(meta.ID, 0, started+100))
	return meta.ID
}

func TestAssemble_ProjectStateAndInstructionsAlwaysPresent(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "go build ./...", 1000, "building the thing")

	f := oracle.NewFake()
	f.DefaultChatResponse = `{"summary":"a healthy project","decisions":["use postgres"],"constraints":["go 1.24"],"active_tasks":[],"recent_topics":[]}`

	doc, err := Assemble(context.Background(), s, f, Options{Budget: 2000, Mode: ModeAuto, Format: FormatMarkdown})
	require.NoError(t, err)
	assert.Equal(t, "a healthy project", doc.ProjectStateSummary)
	assert.NotEmpty(t, doc.Instructions)
}

func TestAssemble_AutoModeInfersBuildFromLatestSession(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "go build ./...", 1000, "compiling")

	f := oracle.NewFake()
	f.DefaultChatResponse = `{"summary":"s","decisions":[],"constraints":[],"active_tasks":[],"recent_topics":[]}`

	label, determined, err := latestSessionEpisode(s)
	require.NoError(t, err)
	assert.Equal(t, ModeBuild, resolveMode(ModeAuto, label, determined))

	doc, err := Assemble(context.Background(), s, f, Options{Budget: 10000, Mode: ModeAuto, Format: FormatJSON})
	require.NoError(t, err)
	// Build mode allocates 0.20 of the budget to plans/active_tasks; with
	// no plans/tasks seeded those sections are simply absent.
	assert.Empty(t, doc.ActiveTasks)
	assert.Empty(t, doc.Plans)
}

func TestAssemble_PlansPulledNewestFirst(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "", 1000)

	require.NoError(t, s.SavePlan("older", []byte("old plan content"), store.ArtifactMeta{ImportedAt: 1}))
	require.NoError(t, s.SavePlan("newer", []byte("new plan content"), store.ArtifactMeta{ImportedAt: 2}))

	f := oracle.NewFake()
	f.DefaultChatResponse = `{"summary":"s","decisions":[],"constraints":[],"active_tasks":[],"recent_topics":[]}`

	doc, err := Assemble(context.Background(), s, f, Options{Budget: 10000, Mode: ModeBuild, Format: FormatXML})
	require.NoError(t, err)
	require.Len(t, doc.Plans, 2)
	assert.Equal(t, "plan:newer", doc.Plans[0].ID)
}

func TestAssemble_OmitsSectionWhenBudgetTooSmallForOneItem(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "", 1000)
	require.NoError(t, s.SavePlan("p1", []byte("this is a reasonably long plan document with many words in it"), store.ArtifactMeta{ImportedAt: 1}))

	f := oracle.NewFake()
	f.DefaultChatResponse = `{"summary":"s","decisions":[],"constraints":[],"active_tasks":[],"recent_topics":[]}`

	doc, err := Assemble(context.Background(), s, f, Options{Budget: 1, Mode: ModeBuild, Format: FormatJSON})
	require.NoError(t, err)
	assert.Empty(t, doc.Plans)
}

func TestAssemble_RecentContextRecencyOrder(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "go build", 1000, "old turn")
	seedSession(t, s, "go build", 5000, "new turn")

	f := oracle.NewFake()
	f.DefaultChatResponse = `{"summary":"s","decisions":[],"constraints":[],"active_tasks":[],"recent_topics":[]}`

	doc, err := Assemble(context.Background(), s, f, Options{Budget: 10000, Mode: ModeDebug, Format: FormatMarkdown})
	require.NoError(t, err)
	require.Len(t, doc.RecentContext, 2)
	assert.Equal(t, "new turn", doc.RecentContext[0].Text, "newest chunk first")
	assert.Equal(t, "old turn", doc.RecentContext[1].Text)
}

func TestRender_AllThreeFormatsProduceOutput(t *testing.T) {
	doc := Document{
		ProjectStateSummary: "summary",
		Decisions:           []string{"d1"},
		Constraints:         []string{"c1"},
		Instructions:        "do the thing",
	}

	xmlOut, err := Render(doc, FormatXML)
	require.NoError(t, err)
	assert.Contains(t, string(xmlOut), "<context-pack>")

	jsonOut, err := Render(doc, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(jsonOut), `"summary"`)

	mdOut, err := Render(doc, FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, string(mdOut), "# Context Pack")
}

func TestRender_UnknownFormatErrors(t *testing.T) {
	_, err := Render(Document{}, Format("yaml"))
	assert.Error(t, err)
}
