// Package retriever implements the scoring pipeline described in spec
// §4.5: cosine similarity, temporal decay, source-type boost, filters,
// and an optional LLM rerank pass.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/memorybank/membank/internal/episode"
	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/vectorindex"
)

// Filters narrows candidates before the final top-K cut (§4.5).
type Filters struct {
	SourceType *store.ChunkSourceType
	Episode    *episode.Label
	// SessionEpisodes maps session_id -> its classified episode, used
	// only when Episode is set, to pre-filter candidate chunks to
	// matching sessions before scoring.
	SessionEpisodes map[string]episode.Label
	SessionIDs      []string
}

// Options configures one Retrieve call.
type Options struct {
	TopK            int
	DecayEnabled    bool
	HalfLifeDays    float64
	SourceTypeBoost map[store.ChunkSourceType]float64
	Rerank          bool
	Now             int64 // seconds since epoch; injected for deterministic tests
}

// DefaultOptions mirrors the store config defaults (§6 config.json,
// decay{enabled:true, half_life_days:14}).
func DefaultOptions() Options {
	return Options{TopK: 10, DecayEnabled: true, HalfLifeDays: 14}
}

// Result is one scored, filtered candidate.
type Result struct {
	Key   store.ChunkKey
	Text  string
	Score float64
}

// Retrieve runs the full scoring pipeline against a single project's
// vector index (§4.5).
func Retrieve(ctx context.Context, idx *vectorindex.Index, o oracle.Oracle, query string, filters Filters, opts Options) ([]Result, error) {
	var queryVec []float32
	err := oracle.WithRetry(ctx, func(ctx context.Context) error {
		v, err := o.Embed(ctx, query)
		if err != nil {
			return err
		}
		queryVec = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	k := opts.TopK
	if opts.Rerank {
		k = k * 3
	}

	hits, err := idx.ScoreAll(ctx, queryVec)
	if err != nil {
		return nil, err
	}

	scored := make([]Result, 0, len(hits))
	for _, h := range hits {
		if !passesFilters(h.Metadata, filters) {
			continue
		}
		score := h.Score
		if opts.DecayEnabled && h.Metadata.StartTS != 0 {
			score *= decayFactor(h.Metadata.StartTS, opts.Now, opts.HalfLifeDays)
		}
		if boost, ok := opts.SourceTypeBoost[h.Metadata.SourceType]; ok {
			score *= boost
		}
		scored = append(scored, Result{
			Key: store.ChunkKey{
				SessionID:  h.Metadata.SessionID,
				ChunkIndex: h.Metadata.ChunkIndex,
				SourceType: h.Metadata.SourceType,
			},
			Text:  h.Metadata.Text,
			Score: score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}

	if opts.Rerank && len(scored) > 0 {
		reranked, err := rerank(ctx, o, query, scored)
		if err == nil {
			scored = reranked
		}
		// A rerank failure falls back to the unreranked top-K (§4.5).
	}

	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	return scored, nil
}

func passesFilters(m vectorindex.Metadata, f Filters) bool {
	if f.SourceType != nil && m.SourceType != *f.SourceType {
		return false
	}
	if len(f.SessionIDs) > 0 {
		found := false
		for _, id := range f.SessionIDs {
			if id == m.SessionID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Episode != nil {
		label, ok := f.SessionEpisodes[m.SessionID]
		if !ok || label != *f.Episode {
			return false
		}
	}
	return true
}

// decayFactor implements 2^(-Δdays/half_life_days), Δdays = max(0, now-start_ts).
func decayFactor(startTS, now int64, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	deltaSeconds := now - startTS
	if deltaSeconds < 0 {
		deltaSeconds = 0
	}
	deltaDays := float64(deltaSeconds) / 86400.0
	return math.Pow(2, -deltaDays/halfLifeDays)
}

// rerank submits the candidates to the oracle for relative relevance
// scoring and reorders by the returned scores (§4.5 step 5).
func rerank(ctx context.Context, o oracle.Oracle, query string, candidates []Result) ([]Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nRate each passage's relevance to the query from 0 to 10, one integer per line, in order:\n\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(c.Text, 500))
	}

	resp, err := o.Chat(ctx, b.String())
	if err != nil {
		return nil, err
	}

	scores := parseScores(resp, len(candidates))
	if scores == nil {
		return nil, fmt.Errorf("rerank response did not parse")
	}

	out := make([]Result, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func parseScores(resp string, want int) []float64 {
	lines := strings.Split(strings.TrimSpace(resp), "\n")
	var scores []float64
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v float64
		if _, err := fmt.Sscanf(line, "%f", &v); err == nil {
			scores = append(scores, v)
		}
	}
	if len(scores) != want {
		return nil
	}
	return scores
}
