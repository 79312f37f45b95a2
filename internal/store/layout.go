package store

import "path/filepath"

// Layout resolves the on-disk paths under a store root, bit-exact with
// the spec's §6 external interface:
//
//	<root>/config.json
//	<root>/hooks_state.json
//	<root>/import_state.json
//	<root>/sessions/<id>/{meta.json,events.jsonl,chunks.jsonl}
//	<root>/artifacts/{chunks.jsonl,plans/,todos/,tasks/}
//	<root>/index/{vectors.bin,metadata.jsonl,dim}
//	<root>/state/state.json
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) ConfigPath() string      { return filepath.Join(l.Root, "config.json") }
func (l Layout) HooksStatePath() string  { return filepath.Join(l.Root, "hooks_state.json") }
func (l Layout) ImportStatePath() string { return filepath.Join(l.Root, "import_state.json") }
func (l Layout) LockPath() string        { return filepath.Join(l.Root, ".lock") }

func (l Layout) SessionsDir() string { return filepath.Join(l.Root, "sessions") }
func (l Layout) SessionDir(id string) string {
	return filepath.Join(l.SessionsDir(), id)
}
func (l Layout) SessionMetaPath(id string) string {
	return filepath.Join(l.SessionDir(id), "meta.json")
}
func (l Layout) SessionEventsPath(id string) string {
	return filepath.Join(l.SessionDir(id), "events.jsonl")
}
func (l Layout) SessionChunksPath(id string) string {
	return filepath.Join(l.SessionDir(id), "chunks.jsonl")
}

func (l Layout) ArtifactsDir() string { return filepath.Join(l.Root, "artifacts") }
func (l Layout) ArtifactChunksPath() string {
	return filepath.Join(l.ArtifactsDir(), "chunks.jsonl")
}
func (l Layout) PlansDir() string { return filepath.Join(l.ArtifactsDir(), "plans") }
func (l Layout) TodosDir() string { return filepath.Join(l.ArtifactsDir(), "todos") }
func (l Layout) TasksDir() string { return filepath.Join(l.ArtifactsDir(), "tasks") }

func (l Layout) IndexDir() string          { return filepath.Join(l.Root, "index") }
func (l Layout) VectorsPath() string       { return filepath.Join(l.IndexDir(), "vectors.bin") }
func (l Layout) MetadataLogPath() string   { return filepath.Join(l.IndexDir(), "metadata.jsonl") }
func (l Layout) DimPath() string           { return filepath.Join(l.IndexDir(), "dim") }

func (l Layout) StateDir() string      { return filepath.Join(l.Root, "state") }
func (l Layout) StateFilePath() string { return filepath.Join(l.StateDir(), "state.json") }
