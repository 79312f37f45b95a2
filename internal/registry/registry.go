// Package registry maintains the per-OS-user index of known project
// stores used for global (cross-project) search (§6, "Global
// registry").
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one registered project store.
type Entry struct {
	Root         string `json:"root"`
	LastImportAt int64  `json:"last_import_at"`
	SessionCount int    `json:"session_count"`
}

// Registry is the projects.json file at <home>/.memory-bank/projects.json.
type Registry struct {
	path string
}

// DefaultPath returns <home>/.memory-bank/projects.json for the
// current OS user.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".memory-bank", "projects.json"), nil
}

// Open loads (or lazily creates the parent directory for) the registry
// at path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Registry{path: path}, nil
}

// List returns every registered entry, sorted by root for determinism.
func (r *Registry) List() ([]Entry, error) {
	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Root < entries[j].Root })
	return entries, nil
}

// Upsert adds entry, or replaces the existing entry for the same Root.
func (r *Registry) Upsert(entry Entry) error {
	entries, err := r.load()
	if err != nil {
		return err
	}
	found := false
	for i, e := range entries {
		if e.Root == entry.Root {
			entries[i] = entry
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, entry)
	}
	return r.save(entries)
}

// Remove deletes the entry for root, if present.
func (r *Registry) Remove(root string) error {
	entries, err := r.load()
	if err != nil {
		return err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Root != root {
			out = append(out, e)
		}
	}
	return r.save(out)
}

func (r *Registry) load() ([]Entry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Registry) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0644)
}
