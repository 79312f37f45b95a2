package store

// SourceType is the closed set of session origins (data model §3).
type SourceType string

const (
	SourceHook   SourceType = "hook"
	SourceImport SourceType = "import"
	SourcePTY    SourceType = "pty"
)

// ChunkSourceType is the closed set of chunk origins.
type ChunkSourceType string

const (
	ChunkSession ChunkSourceType = "session"
	ChunkPlan    ChunkSourceType = "plan"
	ChunkTodo    ChunkSourceType = "todo"
	ChunkTask    ChunkSourceType = "task"
)

// SpeakerRole labels who produced a chunk's text, when known.
type SpeakerRole string

const (
	SpeakerUser      SpeakerRole = "user"
	SpeakerAssistant SpeakerRole = "assistant"
	SpeakerMixed     SpeakerRole = "mixed"
)

// EventStream labels a PTY event's direction.
type EventStream string

const (
	StreamIn  EventStream = "in"
	StreamOut EventStream = "out"
)

// SessionMeta is the immutable-after-finalize session record (§3).
type SessionMeta struct {
	ID                       string     `json:"id"`
	Source                   SourceType `json:"source"`
	Command                  string     `json:"command,omitempty"`
	StartedAt                int64      `json:"started_at"`
	EndedAt                  int64      `json:"ended_at"`
	ExitCode                 int        `json:"exit_code"`
	OriginatingAgentSessionID *string   `json:"originating_agent_session_id,omitempty"`

	finalized bool
}

// Finalized reports whether this meta record has been written with an
// end timestamp and is therefore read-only.
func (m SessionMeta) Finalized() bool { return m.finalized }

// Event is one append-only PTY capture record.
type Event struct {
	Timestamp int64       `json:"timestamp"`
	Stream    EventStream `json:"stream"`
	Text      string      `json:"text"`
}

// Chunk is an immutable, token-bounded text unit (§3).
type Chunk struct {
	SessionID   string          `json:"session_id"`
	ChunkIndex  int             `json:"chunk_index"`
	SourceType  ChunkSourceType `json:"source_type"`
	Text        string          `json:"text"`
	TokenCount  int             `json:"token_count"`
	Quality     float64         `json:"quality"`
	StartTS     int64           `json:"start_ts"`
	EndTS       int64           `json:"end_ts"`
	SpeakerRole SpeakerRole     `json:"speaker_role,omitempty"`
}

// Key returns the identifying triple used to key chunks across logs,
// the vector index, and dedup sets.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{SessionID: c.SessionID, ChunkIndex: c.ChunkIndex, SourceType: c.SourceType}
}

// ChunkKey is the identifying key of a chunk, per §3's invariant that
// every vector/metadata pair carries the full identifying key.
type ChunkKey struct {
	SessionID  string
	ChunkIndex int
	SourceType ChunkSourceType
}

// Artifact identifies an externally produced document chunked alongside
// sessions (§3).
type Artifact struct {
	SourceType      ChunkSourceType `json:"source_type"`
	AgentSessionID  string          `json:"agent_session_id"`
	ArtifactID      string          `json:"artifact_id"`
	Path            string          `json:"path"`
	ImportedAt      int64           `json:"imported_at"`
}

// DedupKey implements the §9 open-question decision: artifact dedup is
// keyed by (source_type, agent_session_id, artifact_id).
func (a Artifact) DedupKey() string {
	return string(a.SourceType) + "|" + a.AgentSessionID + "|" + a.ArtifactID
}
