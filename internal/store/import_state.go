package store

import (
	"encoding/json"
	"os"
)

// ImportState is the import_state.json schema (§6). Per the §9 open
// question, artifact dedup uses (source_type, agent_session_id,
// artifact_id) as its key, tracked here as Artifacts.
type ImportState struct {
	ImportedUUIDs []string          `json:"imported_uuids"`
	Artifacts     map[string]int64  `json:"artifacts"` // dedup key -> imported_at
}

// LoadImportState reads import_state.json, returning an empty state if absent.
func (s *Store) LoadImportState() (ImportState, error) {
	data, err := os.ReadFile(s.layout.ImportStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ImportState{Artifacts: map[string]int64{}}, nil
		}
		return ImportState{}, err
	}
	var st ImportState
	if err := json.Unmarshal(data, &st); err != nil {
		return ImportState{}, err
	}
	if st.Artifacts == nil {
		st.Artifacts = map[string]int64{}
	}
	return st, nil
}

// SaveImportState writes import_state.json.
func (s *Store) SaveImportState(st ImportState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.layout.ImportStatePath(), data)
}

// HasImportedUUID reports whether a transcript UUID has already been imported.
func (st ImportState) HasImportedUUID(uuid string) bool {
	for _, u := range st.ImportedUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

// HasArtifact reports whether an artifact dedup key has already been imported.
func (st ImportState) HasArtifact(key string) bool {
	_, ok := st.Artifacts[key]
	return ok
}

// HooksState is the hooks_state.json schema: agent_session_id -> our session_id.
type HooksState map[string]string

// LoadHooksState reads hooks_state.json, returning an empty map if absent.
func (s *Store) LoadHooksState() (HooksState, error) {
	data, err := os.ReadFile(s.layout.HooksStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return HooksState{}, nil
		}
		return nil, err
	}
	var st HooksState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st == nil {
		st = HooksState{}
	}
	return st, nil
}

// SaveHooksState writes hooks_state.json.
func (s *Store) SaveHooksState(st HooksState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.layout.HooksStatePath(), data)
}
