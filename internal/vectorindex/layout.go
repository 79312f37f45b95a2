package vectorindex

import "path/filepath"

// Layout locates the three files that make up one vector index
// directory (§4.4).
type Layout struct {
	Dir string
}

func NewLayout(dir string) Layout { return Layout{Dir: dir} }

func (l Layout) VectorsPath() string  { return filepath.Join(l.Dir, "vectors.bin") }
func (l Layout) MetadataPath() string { return filepath.Join(l.Dir, "metadata.jsonl") }
func (l Layout) DimPath() string      { return filepath.Join(l.Dir, "dim") }

func (l Layout) VectorsNewPath() string  { return filepath.Join(l.Dir, "vectors.bin.new") }
func (l Layout) MetadataNewPath() string { return filepath.Join(l.Dir, "metadata.jsonl.new") }
