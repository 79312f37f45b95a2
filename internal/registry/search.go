package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/retriever"
	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/vectorindex"
)

// GlobalResult is one retriever result tagged with the project root it
// came from, so a cross-project search can disambiguate matches.
type GlobalResult struct {
	Root string
	retriever.Result
}

// Warning records a registered root that could not be searched, so the
// caller can report it without failing the whole search (§6, "skip
// unreachable roots with a warning").
type Warning struct {
	Root string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Root, w.Err)
}

// SearchAll queries every registered project's index read-only and
// merges the results by score, trimming to the overall topK.
func SearchAll(ctx context.Context, entries []Entry, o oracle.Oracle, query string, topK int) ([]GlobalResult, []Warning, error) {
	var all []GlobalResult
	var warnings []Warning

	for _, e := range entries {
		results, err := searchOne(ctx, e.Root, o, query, topK)
		if err != nil {
			warnings = append(warnings, Warning{Root: e.Root, Err: err})
			continue
		}
		for _, r := range results {
			all = append(all, GlobalResult{Root: e.Root, Result: r})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > topK {
		all = all[:topK]
	}
	return all, warnings, nil
}

func searchOne(ctx context.Context, root string, o oracle.Oracle, query string, topK int) ([]retriever.Result, error) {
	layout := store.NewLayout(root)
	idx, err := vectorindex.Open(layout.IndexDir())
	if err != nil {
		return nil, err
	}
	cfg, err := store.LoadStoreConfig(layout.ConfigPath())
	if err != nil {
		return nil, err
	}
	opts := retriever.DefaultOptions()
	opts.DecayEnabled = cfg.Decay.Enabled
	opts.HalfLifeDays = cfg.Decay.HalfLifeDays
	opts.TopK = topK
	opts.Now = time.Now().Unix()
	return retriever.Retrieve(ctx, idx, o, query, retriever.Filters{}, opts)
}
