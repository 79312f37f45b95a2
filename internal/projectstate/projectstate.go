// Package projectstate generates and caches the summarized project
// state used by the pack assembler, per spec §4.7.
package projectstate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/store"
)

// State is the cached, oracle-summarized project state (§3).
type State struct {
	Summary        string   `json:"summary"`
	Decisions      []string `json:"decisions"`
	Constraints    []string `json:"constraints"`
	ActiveTasks    []string `json:"active_tasks"`
	RecentTopics   []string `json:"recent_topics"`
	GeneratedAt    int64    `json:"generated_at"`
	ChunkFingerprint string `json:"chunk_fingerprint"`
}

const maxSampleChunks = 120

// Fingerprint computes the monotonic digest described in §4.7:
// (count_total, max_start_ts, hash(last 32 chunk keys)).
func Fingerprint(chunks []store.Chunk) string {
	maxTS := int64(0)
	for _, c := range chunks {
		if c.StartTS > maxTS {
			maxTS = c.StartTS
		}
	}

	sorted := make([]store.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTS != sorted[j].StartTS {
			return sorted[i].StartTS < sorted[j].StartTS
		}
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})
	tail := sorted
	if len(tail) > 32 {
		tail = tail[len(tail)-32:]
	}

	h := sha256.New()
	for _, c := range tail {
		fmt.Fprintf(h, "%s|%d|%s;", c.SessionID, c.ChunkIndex, c.SourceType)
	}
	digest := hex.EncodeToString(h.Sum(nil))[:16]

	return fmt.Sprintf("%d:%d:%s", len(chunks), maxTS, digest)
}

const chatPrompt = `Summarize this project's recent activity. Respond with a single JSON object
with exactly these keys: "summary" (string), "decisions" (array of strings),
"constraints" (array of strings), "active_tasks" (array of strings),
"recent_topics" (array of strings).

Context:
%s`

// Generate computes the current fingerprint and returns the cached
// state if it matches; otherwise samples up to 120 chunks by quality-
// weighted sampling, asks the oracle for a structured summary, and
// persists the result. On any oracle failure it falls back to the most
// recent cached state, or an empty state — a pack request must never
// fail because state generation failed (§4.7 step 5).
func Generate(ctx context.Context, path string, chunks []store.Chunk, o oracle.Oracle) (State, error) {
	fp := Fingerprint(chunks)

	cached, hasCached := load(path)
	if hasCached && cached.ChunkFingerprint == fp {
		return cached, nil
	}

	sample := sampleChunks(chunks, maxSampleChunks)
	prompt := fmt.Sprintf(chatPrompt, renderSample(sample))

	resp, err := o.Chat(ctx, prompt)
	if err != nil {
		if hasCached {
			return cached, nil
		}
		return State{}, nil
	}

	var parsed struct {
		Summary      string   `json:"summary"`
		Decisions    []string `json:"decisions"`
		Constraints  []string `json:"constraints"`
		ActiveTasks  []string `json:"active_tasks"`
		RecentTopics []string `json:"recent_topics"`
	}
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		if hasCached {
			return cached, nil
		}
		return State{}, nil
	}

	state := State{
		Summary:          parsed.Summary,
		Decisions:        parsed.Decisions,
		Constraints:      parsed.Constraints,
		ActiveTasks:      parsed.ActiveTasks,
		RecentTopics:     parsed.RecentTopics,
		GeneratedAt:      nowFunc(),
		ChunkFingerprint: fp,
	}
	_ = save(path, state) // best-effort; a save failure must not fail the pack

	return state, nil
}

// nowFunc is overridable by tests.
var nowFunc = func() int64 { return time.Now().Unix() }

func load(path string) (State, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, false
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, false
	}
	return s, true
}

func save(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// sampleChunks performs weighted sampling by (quality + 0.05), biasing
// toward higher-quality chunks while still allowing low-quality ones a
// chance (§4.7 step 3). Chunks of equal weight are picked at random;
// recency only breaks an exact tie between sampling keys. When there
// are n or fewer chunks, all are returned, newest first.
func sampleChunks(chunks []store.Chunk, n int) []store.Chunk {
	if len(chunks) <= n {
		sorted := make([]store.Chunk, len(chunks))
		copy(sorted, chunks)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTS > sorted[j].StartTS })
		return sorted
	}

	type weighted struct {
		chunk store.Chunk
		key   float64
	}
	rng := rand.New(rand.NewSource(1)) // deterministic: fingerprint gates regeneration, not randomness
	pool := make([]weighted, len(chunks))
	for i, c := range chunks {
		w := c.Quality + 0.05
		// Efraimidis-Spirakis weighted reservoir key.
		u := rng.Float64()
		key := math.Pow(u, 1.0/w)
		pool[i] = weighted{chunk: c, key: key}
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].key != pool[j].key {
			return pool[i].key > pool[j].key
		}
		return pool[i].chunk.StartTS > pool[j].chunk.StartTS
	})
	out := make([]store.Chunk, n)
	for i := 0; i < n; i++ {
		out[i] = pool[i].chunk
	}
	return out
}

func renderSample(chunks []store.Chunk) string {
	var out string
	for _, c := range chunks {
		out += c.Text + "\n\n"
	}
	return out
}
