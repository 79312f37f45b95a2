// Package store owns the on-disk layout of a Memory Bank project store:
// it creates, finalizes, and deletes sessions, reads and writes store
// config, and serializes the append-only session/artifact chunk and
// event logs described in spec §3 and §6.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/memorybank/membank/internal/errs"
)

// Store is a handle to one project's on-disk data. There is no
// process-wide singleton (§9): callers hold as many Store handles as
// they need, one per project root.
type Store struct {
	layout Layout
}

// Open initializes (if necessary) and returns a handle to the store
// rooted at root. It is safe to call repeatedly.
func Open(root string) (*Store, error) {
	layout := NewLayout(root)

	for _, dir := range []string{
		layout.Root, layout.SessionsDir(), layout.ArtifactsDir(),
		layout.PlansDir(), layout.TodosDir(), layout.TasksDir(),
		layout.IndexDir(), layout.StateDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(layout.ConfigPath()); os.IsNotExist(err) {
		if err := DefaultStoreConfig().Save(layout.ConfigPath()); err != nil {
			return nil, fmt.Errorf("write default config.json: %w", err)
		}
	}

	return &Store{layout: layout}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.layout.Root }

// Layout exposes the path helper, for components (vectorindex,
// projectstate, pack) that need specific sub-paths.
func (s *Store) Layout() Layout { return s.layout }

// Lock opens the store's advisory file lock, per §5.
func (s *Store) Lock() (*Lock, error) { return NewLock(s.layout.LockPath()) }

// Config reads config.json.
func (s *Store) Config() (StoreConfig, error) {
	return LoadStoreConfig(s.layout.ConfigPath())
}

// SaveConfig writes config.json.
func (s *Store) SaveConfig(cfg StoreConfig) error {
	return cfg.Save(s.layout.ConfigPath())
}

// --- Session lifecycle -----------------------------------------------

// CreateSession allocates a new session id, writes its initial meta
// record, and returns it. EndedAt and ExitCode are zero until Finalize.
func (s *Store) CreateSession(source SourceType, command string, startedAt int64, originatingAgentSessionID *string) (SessionMeta, error) {
	id := NewSessionID(time.Unix(startedAt, 0))
	meta := SessionMeta{
		ID:                        id,
		Source:                    source,
		Command:                   command,
		StartedAt:                 startedAt,
		OriginatingAgentSessionID: originatingAgentSessionID,
	}

	if err := os.MkdirAll(s.layout.SessionDir(id), 0755); err != nil {
		return SessionMeta{}, fmt.Errorf("create session directory: %w", err)
	}
	if err := s.writeMeta(meta); err != nil {
		return SessionMeta{}, err
	}
	return meta, nil
}

// FinalizeSession writes exit_code and ended_at. After this call the
// meta record is read-only (§3 invariant).
func (s *Store) FinalizeSession(id string, exitCode int, endedAt int64) error {
	meta, err := s.ReadSessionMeta(id)
	if err != nil {
		return err
	}
	if meta.finalized {
		return nil
	}
	if endedAt < meta.StartedAt {
		endedAt = meta.StartedAt
	}
	meta.ExitCode = exitCode
	meta.EndedAt = endedAt
	meta.finalized = true
	return s.writeMeta(meta)
}

func (s *Store) writeMeta(meta SessionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}
	path := s.layout.SessionMetaPath(meta.ID)
	return writeFileAtomic(path, data)
}

// ReadSessionMeta loads a session's meta.json.
func (s *Store) ReadSessionMeta(id string) (SessionMeta, error) {
	data, err := os.ReadFile(s.layout.SessionMetaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return SessionMeta{}, errs.Wrap(errs.ErrSessionNotFound, id, err)
		}
		return SessionMeta{}, errs.Wrap(errs.ErrStorageCorrupt, "read session meta", err)
	}
	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SessionMeta{}, errs.Wrap(errs.ErrStorageCorrupt, "parse session meta", err)
	}
	meta.finalized = meta.EndedAt != 0
	return meta, nil
}

// ListSessions returns all known session ids, sorted.
func (s *Store) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(s.layout.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteSession removes a session's directory entirely.
func (s *Store) DeleteSession(id string) error {
	return os.RemoveAll(s.layout.SessionDir(id))
}

// --- Events (PTY sessions only) ---------------------------------------

// AppendEvent appends one event to a session's events.jsonl.
func (s *Store) AppendEvent(id string, ev Event) error {
	return appendJSONLine(s.layout.SessionEventsPath(id), ev)
}

// ReadEvents reads all events for a session.
func (s *Store) ReadEvents(id string) ([]Event, error) {
	var events []Event
	err := readJSONLines(s.layout.SessionEventsPath(id), func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// --- Chunks -------------------------------------------------------------

// AppendChunks appends chunks to a session's chunks.jsonl. Per §3,
// chunk_index must be strictly ordered and contiguous with what is
// already on disk; callers violating this get ErrStorageCorrupt.
func (s *Store) AppendChunks(id string, chunks []Chunk) error {
	existing, err := s.ChunkCount(id)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		if c.ChunkIndex != existing+i {
			return errs.Wrap(errs.ErrStorageCorrupt, fmt.Sprintf("non-contiguous chunk index %d (expected %d)", c.ChunkIndex, existing+i), nil)
		}
	}
	path := s.layout.SessionChunksPath(id)
	return appendJSONLines(path, chunks)
}

// ReplaceChunks overwrites a session's chunks.jsonl with chunks,
// written with the chunk_index values they already carry (hook
// re-ingestion numbers them from zero). Used by hook re-ingestion (§4.3's exception for
// hook-created sessions with a newer transcript source): unlike
// AppendChunks, the caller's transcript already reflects the session's
// full history, so the prior chunk log is discarded rather than
// extended.
func (s *Store) ReplaceChunks(id string, chunks []Chunk) error {
	path := s.layout.SessionChunksPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf []byte
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal chunk: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	return writeFileAtomic(path, buf)
}

// ChunkCount returns how many chunks a session currently has logged.
func (s *Store) ChunkCount(id string) (int, error) {
	n := 0
	err := readJSONLines(s.layout.SessionChunksPath(id), func(line []byte) error {
		n++
		return nil
	})
	return n, err
}

// ReadChunks reads all chunks for a session, in index order.
func (s *Store) ReadChunks(id string) ([]Chunk, error) {
	var chunks []Chunk
	err := readJSONLines(s.layout.SessionChunksPath(id), func(line []byte) error {
		var c Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		chunks = append(chunks, c)
		return nil
	})
	return chunks, err
}

// AppendArtifactChunks appends to the shared artifacts/chunks.jsonl log.
func (s *Store) AppendArtifactChunks(chunks []Chunk) error {
	return appendJSONLines(s.layout.ArtifactChunksPath(), chunks)
}

// ReadArtifactChunks reads the shared artifact chunk log.
func (s *Store) ReadArtifactChunks() ([]Chunk, error) {
	var chunks []Chunk
	err := readJSONLines(s.layout.ArtifactChunksPath(), func(line []byte) error {
		var c Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		chunks = append(chunks, c)
		return nil
	})
	return chunks, err
}

// AllChunks returns every chunk across every session plus artifacts,
// the full iteration domain for an index build (§4.4).
func (s *Store) AllChunks() ([]Chunk, error) {
	var all []Chunk

	ids, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		chunks, err := s.ReadChunks(id)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}

	artifactChunks, err := s.ReadArtifactChunks()
	if err != nil {
		return nil, err
	}
	all = append(all, artifactChunks...)

	return all, nil
}

// MaxLogModTime returns the latest modification time across every
// session's chunks.jsonl and the shared artifact chunk log, used for
// the staleness check in §3/§4.4.
func (s *Store) MaxLogModTime() (time.Time, error) {
	var max time.Time

	ids, err := s.ListSessions()
	if err != nil {
		return max, err
	}
	paths := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		paths = append(paths, s.layout.SessionChunksPath(id))
	}
	paths = append(paths, s.layout.ArtifactChunksPath())

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(max) {
			max = info.ModTime()
		}
	}
	return max, nil
}

// --- PlanSave/TodoSave/TaskSave -----------------------------------------

// SavePlan writes a plan document and its sidecar meta file.
func (s *Store) SavePlan(slug string, content []byte, meta ArtifactMeta) error {
	if err := os.MkdirAll(s.layout.PlansDir(), 0755); err != nil {
		return err
	}
	mdPath := filepath.Join(s.layout.PlansDir(), slug+".md")
	if err := os.WriteFile(mdPath, content, 0644); err != nil {
		return err
	}
	metaPath := filepath.Join(s.layout.PlansDir(), slug+".meta.json")
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, data, 0644)
}

// ArtifactMeta is the sidecar metadata persisted alongside a plan doc.
type ArtifactMeta struct {
	AgentSessionID string `json:"agent_session_id"`
	ArtifactID     string `json:"artifact_id"`
	ImportedAt     int64  `json:"imported_at"`
}

// ListPlans returns plan slugs, newest-first by file mod time.
func (s *Store) ListPlans() ([]string, error) {
	entries, err := os.ReadDir(s.layout.PlansDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type planFile struct {
		slug    string
		modTime time.Time
	}
	var plans []planFile
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".md" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		plans = append(plans, planFile{slug: name[:len(name)-len(".md")], modTime: info.ModTime()})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].modTime.After(plans[j].modTime) })
	slugs := make([]string, len(plans))
	for i, p := range plans {
		slugs[i] = p.slug
	}
	return slugs, nil
}

// ReadPlan reads a plan's content.
func (s *Store) ReadPlan(slug string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.layout.PlansDir(), slug+".md"))
}

// --- low-level JSONL helpers --------------------------------------------

func appendJSONLine(path string, v any) error {
	return appendJSONLines(path, []any{v})
}

func appendJSONLines[T any](path string, items []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal jsonl record: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func readJSONLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return errs.Wrap(errs.ErrStorageCorrupt, "parse jsonl line in "+path, err)
		}
	}
	return scanner.Err()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
