// Package vectorindex implements the append-only, memory-mapped
// vector index described in spec §4.4: a tightly packed little-endian
// float32 matrix (vectors.bin) paired 1:1 by position with a JSONL
// metadata log (metadata.jsonl), plus a sidecar dim file recording the
// fixed embedding dimension.
package vectorindex

import "github.com/memorybank/membank/internal/store"

// Metadata is one record in metadata.jsonl, aligned by line number to
// the vector at the same offset in vectors.bin.
type Metadata struct {
	SessionID  string              `json:"session_id"`
	ChunkIndex int                 `json:"chunk_index"`
	SourceType store.ChunkSourceType `json:"source_type"`
	StartTS    int64               `json:"start_ts"`
	Quality    float64             `json:"quality"`
	Text       string              `json:"text"`
	TokenCount int                 `json:"token_count"`
}

// Key returns the identifying triple shared with store.Chunk.Key, used
// to detect which chunks are already present in the index (§4.4).
func (m Metadata) Key() store.ChunkKey {
	return store.ChunkKey{SessionID: m.SessionID, ChunkIndex: m.ChunkIndex, SourceType: m.SourceType}
}

// Hit is one scored search result, metadata plus its position (used by
// the retriever to re-fetch the full chunk text if needed).
type Hit struct {
	Metadata Metadata
	Score    float64
	Position int
}
