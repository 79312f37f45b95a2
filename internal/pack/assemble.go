package pack

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/memorybank/membank/internal/chunker"
	"github.com/memorybank/membank/internal/episode"
	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/projectstate"
	"github.com/memorybank/membank/internal/store"
)

const instructionsFooter = "Use the sections above as ground truth for this project's state, decisions, constraints, and recent activity. Cite an item by its id when referencing specific context."

// assume average tokens per indexed chunk when estimating how many
// recent_context items the section's budget can hold, so the bounded
// heap in selectRecent never has to materialize every session chunk.
const avgChunkTokens = 60

// Assemble builds a Document from a store's sessions and artifacts
// (§4.8). project_state, constraints, and the instructions footer are
// always included in full; decisions (in project-state order),
// active_tasks, plans, and recent_context (newest-first) are filled up
// to their share of opts.Budget and omitted entirely if even their
// first element doesn't fit.
func Assemble(ctx context.Context, st *store.Store, o oracle.Oracle, opts Options) (Document, error) {
	chunks, err := st.AllChunks()
	if err != nil {
		return Document{}, fmt.Errorf("load chunks: %w", err)
	}

	cfg, err := st.Config()
	if err != nil {
		return Document{}, fmt.Errorf("load config: %w", err)
	}

	state, err := projectstate.Generate(ctx, st.Layout().StateFilePath(), chunks, o)
	if err != nil {
		return Document{}, fmt.Errorf("generate project state: %w", err)
	}

	latestLabel, determined, err := latestSessionEpisode(st)
	if err != nil {
		return Document{}, fmt.Errorf("classify latest session: %w", err)
	}
	mode := resolveMode(opts.Mode, latestLabel, determined)
	w := weightsFor(mode, cfg.PackModes)

	decisionsBudget := int(float64(opts.Budget) * w.Decisions)
	activeBudget := int(float64(opts.Budget) * w.ActiveTasks)
	plansBudget := int(float64(opts.Budget) * w.Plans)
	recentBudget := int(float64(opts.Budget) * w.RecentContext)

	decisions := truncateStrings(state.Decisions, decisionsBudget)

	active := fillItemBudget(activeTaskItems(chunks), activeBudget)

	plans, err := planItems(st)
	if err != nil {
		return Document{}, fmt.Errorf("load plans: %w", err)
	}
	plans = fillItemBudget(plans, plansBudget)

	var sessionEpisodes map[string]episode.Label
	if opts.Episode != nil {
		sessionEpisodes, err = classifyAllSessions(st)
		if err != nil {
			return Document{}, fmt.Errorf("classify sessions: %w", err)
		}
	}
	k := recentBudget / avgChunkTokens
	recent := fillItemBudget(chunksToItems(selectRecent(chunks, k, opts.Episode, sessionEpisodes)), recentBudget)

	return Document{
		ProjectStateSummary: state.Summary,
		Decisions:           decisions,
		Constraints:         state.Constraints,
		ActiveTasks:         active,
		Plans:               plans,
		RecentContext:       recent,
		Instructions:        instructionsFooter,
	}, nil
}

func truncateStrings(items []string, budget int) []string {
	var out []string
	sum := 0
	for _, s := range items {
		t := chunker.EstimateTokens(s)
		if sum+t > budget {
			break
		}
		out = append(out, s)
		sum += t
	}
	return out
}

// fillItemBudget keeps items from the front (already newest-first)
// until the next one would overshoot budget, implementing the
// drop-from-the-tail-first truncation priority.
func fillItemBudget(items []Item, budget int) []Item {
	var out []Item
	sum := 0
	for _, it := range items {
		if sum+it.Tokens > budget {
			break
		}
		out = append(out, it)
		sum += it.Tokens
	}
	return out
}

func itemID(c store.Chunk) string {
	if c.SessionID == "" {
		return fmt.Sprintf("%s#%d", c.SourceType, c.ChunkIndex)
	}
	return fmt.Sprintf("%s:%s#%d", c.SourceType, c.SessionID, c.ChunkIndex)
}

func chunksToItems(chunks []store.Chunk) []Item {
	items := make([]Item, len(chunks))
	for i, c := range chunks {
		items[i] = Item{
			ID:         itemID(c),
			SourceType: c.SourceType,
			SessionID:  c.SessionID,
			Text:       c.Text,
			Tokens:     c.TokenCount,
		}
	}
	return items
}

// activeTaskItems pulls task and todo artifact chunks newest-first.
func activeTaskItems(chunks []store.Chunk) []Item {
	var tasks []store.Chunk
	for _, c := range chunks {
		if c.SourceType == store.ChunkTask || c.SourceType == store.ChunkTodo {
			tasks = append(tasks, c)
		}
	}
	sortByStartTSDesc(tasks)
	return chunksToItems(tasks)
}

func sortByStartTSDesc(chunks []store.Chunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].StartTS < chunks[j].StartTS; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}

func planItems(st *store.Store) ([]Item, error) {
	slugs, err := st.ListPlans()
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, slug := range slugs {
		content, err := st.ReadPlan(slug)
		if err != nil {
			continue // an unreadable plan must not fail the whole pack
		}
		items = append(items, Item{
			ID:         "plan:" + slug,
			SourceType: store.ChunkPlan,
			Text:       string(content),
			Tokens:     chunker.EstimateTokens(string(content)),
		})
	}
	return items, nil
}

func classifyAllSessions(st *store.Store) (map[string]episode.Label, error) {
	ids, err := st.ListSessions()
	if err != nil {
		return nil, err
	}
	out := make(map[string]episode.Label, len(ids))
	for _, id := range ids {
		label, ok, err := sessionEpisode(st, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = label
		}
	}
	return out, nil
}

func sessionEpisode(st *store.Store, id string) (episode.Label, bool, error) {
	meta, err := st.ReadSessionMeta(id)
	if err != nil {
		return "", false, err
	}
	if meta.Command != "" {
		return episode.ClassifyCommand(meta.Command), true, nil
	}
	chunks, err := st.ReadChunks(id)
	if err != nil {
		return "", false, err
	}
	if len(chunks) == 0 {
		return "", false, nil
	}
	var text string
	for _, c := range chunks {
		text += c.Text + "\n"
	}
	return episode.ClassifyContent(text), true, nil
}

func latestSessionEpisode(st *store.Store) (episode.Label, bool, error) {
	ids, err := st.ListSessions()
	if err != nil {
		return "", false, err
	}
	var latestID string
	var latestStart int64
	found := false
	for _, id := range ids {
		meta, err := st.ReadSessionMeta(id)
		if err != nil {
			continue
		}
		if !found || meta.StartedAt > latestStart {
			latestID = id
			latestStart = meta.StartedAt
			found = true
		}
	}
	if !found {
		return "", false, nil
	}
	return sessionEpisode(st, latestID)
}

// selectRecent keeps the k most recent session chunks, optionally
// restricted to sessions classified with the given episode, using a
// bounded min-heap so the full chunk set never needs sorting (§4.8
// step 3).
func selectRecent(chunks []store.Chunk, k int, filter *episode.Label, sessionEpisodes map[string]episode.Label) []store.Chunk {
	if k <= 0 {
		return nil
	}
	h := &tsHeap{}
	heap.Init(h)
	for _, c := range chunks {
		if c.SourceType != store.ChunkSession {
			continue
		}
		if filter != nil && sessionEpisodes[c.SessionID] != *filter {
			continue
		}
		if h.Len() < k {
			heap.Push(h, c)
			continue
		}
		if c.StartTS > (*h)[0].StartTS {
			heap.Pop(h)
			heap.Push(h, c)
		}
	}
	out := make([]store.Chunk, h.Len())
	copy(out, *h)
	sortByStartTSDesc(out)
	return out
}

type tsHeap []store.Chunk

func (h tsHeap) Len() int            { return len(h) }
func (h tsHeap) Less(i, j int) bool  { return h[i].StartTS < h[j].StartTS }
func (h tsHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tsHeap) Push(x any)         { *h = append(*h, x.(store.Chunk)) }
func (h *tsHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
