// Package hook implements the host agent's Stop-event handler (§6,
// "Hook contract"): it reads a small JSON document from stdin and
// drives transcript ingestion into a project's store. The handler
// itself returns errors for its caller to log; the "must exit 0
// regardless of internal outcome" part of the contract belongs to the
// command-line entrypoint that wraps this package, not to Handle.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/memorybank/membank/internal/chunker"
	"github.com/memorybank/membank/internal/fileutil"
	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/turns"
)

// Input is the Stop-event payload the host agent writes to stdin.
type Input struct {
	TranscriptPath string `json:"transcript_path"`
	SessionID      string `json:"session_id"`
	Cwd            string `json:"cwd"`
}

// ParseInput decodes one Input document from r.
func ParseInput(r io.Reader) (Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Input{}, fmt.Errorf("hook: decode input: %w", err)
	}
	return in, nil
}

// Handle ingests the transcript named by in.TranscriptPath into st,
// creating a new session the first time a given in.SessionID is seen
// and re-chunking from scratch on every subsequent call — the host
// agent's transcript file already contains the conversation's full
// history at each Stop event, so there is nothing to append to, only
// to replace (§4.3's re-chunking exception for hook-created sessions).
func Handle(ctx context.Context, st *store.Store, in Input, now int64) error {
	if in.TranscriptPath == "" {
		return fmt.Errorf("hook: missing transcript_path")
	}
	if in.SessionID == "" {
		return fmt.Errorf("hook: missing session_id")
	}
	if !fileutil.IsFile(in.TranscriptPath) {
		return fmt.Errorf("hook: transcript not found: %s", in.TranscriptPath)
	}

	meta, err := resolveSession(st, in, now)
	if err != nil {
		return fmt.Errorf("hook: resolve session: %w", err)
	}

	extracted, err := turns.ExtractFile(in.TranscriptPath, false)
	if err != nil {
		return fmt.Errorf("hook: extract transcript: %w", err)
	}

	cfg, err := st.Config()
	if err != nil {
		return fmt.Errorf("hook: load config: %w", err)
	}
	opts := chunker.Options{MaxTokens: cfg.Chunking.MaxTokens, OverlapTokens: cfg.Chunking.OverlapTokens}
	chunks := chunker.ChunkTurns(meta.ID, extracted, opts, 0)

	if err := st.ReplaceChunks(meta.ID, chunks); err != nil {
		return fmt.Errorf("hook: store chunks: %w", err)
	}
	return nil
}

func resolveSession(st *store.Store, in Input, now int64) (store.SessionMeta, error) {
	hooksState, err := st.LoadHooksState()
	if err != nil {
		return store.SessionMeta{}, err
	}

	if sessionID, ok := hooksState[in.SessionID]; ok {
		if meta, err := st.ReadSessionMeta(sessionID); err == nil {
			return meta, nil
		}
		// Stale mapping (e.g. the session was deleted): fall through and
		// register a fresh one below.
	}

	meta, err := st.CreateSession(store.SourceHook, "", now, &in.SessionID)
	if err != nil {
		return store.SessionMeta{}, err
	}
	hooksState[in.SessionID] = meta.ID
	if err := st.SaveHooksState(hooksState); err != nil {
		return store.SessionMeta{}, err
	}
	return meta, nil
}
