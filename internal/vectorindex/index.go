package vectorindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/memorybank/membank/internal/errs"
	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/store"
)

const floatSize = 4 // bytes per float32 entry

// flushEvery is the batch size at which Build fsyncs its appends and
// checks for cancellation (§4.4, §5).
const flushEvery = 64

// Index is a handle to one on-disk vector index directory. It does not
// hold the memory-map open between calls: Search opens, maps, scans,
// and unmaps per call, since the spec's non-goal rules out a
// long-lived server process holding shared state.
type Index struct {
	layout Layout
}

// Open returns a handle to the index directory, performing the
// crash-recovery truncation described in §4.4/§9 before returning.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	idx := &Index{layout: NewLayout(dir)}
	if err := idx.recoverFromCrash(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Dim returns the fixed embedding dimension, or 0 if the index is
// still empty.
func (idx *Index) Dim() (int, error) {
	data, err := os.ReadFile(idx.layout.DimPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var dim int
	if _, err := fmt.Sscanf(string(data), "%d", &dim); err != nil {
		return 0, errs.Wrap(errs.ErrStorageCorrupt, "parse dim file", err)
	}
	return dim, nil
}

// Count returns how many vectors are currently recorded, by counting
// metadata lines (the source of truth after crash recovery).
func (idx *Index) Count() (int, error) {
	f, err := os.Open(idx.layout.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		n++
	}
	return n, scanner.Err()
}

// recoverFromCrash truncates vectors.bin to len(metadata.jsonl) × dim ×
// 4 bytes, undoing a crash mid-Build that left a dangling vector with
// no paired metadata record (§4.4 "Guarantees").
func (idx *Index) recoverFromCrash() error {
	dim, err := idx.Dim()
	if err != nil {
		return err
	}
	if dim == 0 {
		return nil // nothing built yet
	}
	count, err := idx.Count()
	if err != nil {
		return err
	}

	info, err := os.Stat(idx.layout.VectorsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	wantSize := int64(count) * int64(dim) * floatSize
	if info.Size() > wantSize {
		f, err := os.OpenFile(idx.layout.VectorsPath(), os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		return f.Truncate(wantSize)
	}
	return nil
}

// existingKeys loads the identifying key of every metadata record
// currently on disk, so Build can skip chunks already indexed.
func (idx *Index) existingKeys() (map[store.ChunkKey]bool, error) {
	keys := map[store.ChunkKey]bool{}
	f, err := os.Open(idx.layout.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Metadata
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, errs.Wrap(errs.ErrStorageCorrupt, "parse metadata line", err)
		}
		keys[m.Key()] = true
	}
	return keys, scanner.Err()
}

// Build embeds every chunk in chunks not already present in the index
// and appends the (vector, metadata) pair, flushing every flushEvery
// inserts (§4.4). ctx is checked before each oracle call and at each
// flush boundary; a cancelled build leaves the store
// consistent thanks to the vector-then-metadata append order.
func (idx *Index) Build(ctx context.Context, chunks []store.Chunk, o oracle.Oracle) (inserted int, err error) {
	existing, err := idx.existingKeys()
	if err != nil {
		return 0, err
	}

	dim, err := idx.Dim()
	if err != nil {
		return 0, err
	}

	vf, err := os.OpenFile(idx.layout.VectorsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer vf.Close()
	mf, err := os.OpenFile(idx.layout.MetadataPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer mf.Close()

	sinceFlush := 0
	for _, c := range chunks {
		if existing[c.Key()] {
			continue
		}

		select {
		case <-ctx.Done():
			return inserted, ctx.Err()
		default:
		}

		var vec []float32
		embedErr := oracle.WithRetry(ctx, func(ctx context.Context) error {
			v, err := o.Embed(ctx, c.Text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if embedErr != nil {
			return inserted, embedErr
		}

		if dim == 0 {
			dim = len(vec)
			if err := os.WriteFile(idx.layout.DimPath(), []byte(fmt.Sprintf("%d", dim)), 0644); err != nil {
				return inserted, err
			}
		} else if len(vec) != dim {
			return inserted, errs.Wrap(errs.ErrIndexDimMismatch,
				fmt.Sprintf("embedding dim %d != index dim %d", len(vec), dim), nil)
		}

		if err := writeVector(vf, vec); err != nil {
			return inserted, err
		}
		if err := vf.Sync(); err != nil {
			return inserted, err
		}

		meta := Metadata{
			SessionID:  c.SessionID,
			ChunkIndex: c.ChunkIndex,
			SourceType: c.SourceType,
			StartTS:    c.StartTS,
			Quality:    c.Quality,
			Text:       c.Text,
			TokenCount: c.TokenCount,
		}
		line, err := json.Marshal(meta)
		if err != nil {
			return inserted, err
		}
		if _, err := mf.Write(append(line, '\n')); err != nil {
			return inserted, err
		}

		existing[c.Key()] = true
		inserted++
		sinceFlush++

		if sinceFlush >= flushEvery {
			if err := mf.Sync(); err != nil {
				return inserted, err
			}
			sinceFlush = 0
			select {
			case <-ctx.Done():
				return inserted, ctx.Err()
			default:
			}
		}
	}
	if sinceFlush > 0 {
		if err := mf.Sync(); err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}

func writeVector(w *os.File, vec []float32) error {
	buf := make([]byte, len(vec)*floatSize)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*floatSize:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// Search memory-maps vectors.bin read-only, normalizes the query
// vector, scores every vector by dot product, and returns the top-K
// hits with lazily loaded metadata (§4.4).
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	dim, err := idx.Dim()
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(query) != dim {
		return nil, errs.Wrap(errs.ErrIndexDimMismatch,
			fmt.Sprintf("query dim %d != index dim %d", len(query), dim), nil)
	}

	f, err := os.Open(idx.layout.VectorsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, nil
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap vectors: %w", err)
	}
	defer mapped.Unmap()

	n := int(info.Size() / int64(dim*floatSize))
	normQuery := normalizeCopy(query)

	top := make([]scoredEntry, 0, k)

	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		vec := readVector(mapped, i, dim)
		score := dotNormalized(normQuery, vec)
		top = insertTopK(top, scoredEntry{pos: i, score: score}, k)
	}

	positions := make([]int, len(top))
	for i, s := range top {
		positions[i] = s.pos
	}
	metas, err := idx.loadMetadataAt(positions)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(top))
	for i, s := range top {
		hits[i] = Hit{Metadata: metas[i], Score: s.score, Position: s.pos}
	}
	return hits, nil
}

// ScoreAll memory-maps vectors.bin and returns a cosine score plus
// full metadata for every vector in the index, unfiltered and
// unsorted by any criterion but position. It is the primitive
// internal/retriever builds its decay/boost/filter pipeline on top of,
// since the oracle-facing top-K in Search only knows about raw cosine
// score (§4.5 requires decay and boosts applied before the final
// top-K cut, which this package does not know how to compute).
func (idx *Index) ScoreAll(ctx context.Context, query []float32) ([]Hit, error) {
	dim, err := idx.Dim()
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(query) != dim {
		return nil, errs.Wrap(errs.ErrIndexDimMismatch,
			fmt.Sprintf("query dim %d != index dim %d", len(query), dim), nil)
	}

	f, err := os.Open(idx.layout.VectorsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, nil
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap vectors: %w", err)
	}
	defer mapped.Unmap()

	n := int(info.Size() / int64(dim*floatSize))
	normQuery := normalizeCopy(query)

	metas, err := idx.loadAllMetadata()
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, n)
	for i := 0; i < n; i++ {
		if i%flushEvery == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		vec := readVector(mapped, i, dim)
		score := dotNormalized(normQuery, vec)
		var m Metadata
		if i < len(metas) {
			m = metas[i]
		}
		hits = append(hits, Hit{Metadata: m, Score: score, Position: i})
	}
	return hits, nil
}

func (idx *Index) loadAllMetadata() ([]Metadata, error) {
	f, err := os.Open(idx.layout.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var metas []Metadata
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Metadata
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, errs.Wrap(errs.ErrStorageCorrupt, "parse metadata line", err)
		}
		metas = append(metas, m)
	}
	return metas, scanner.Err()
}

func readVector(mapped mmap.MMap, pos, dim int) []float32 {
	vec := make([]float32, dim)
	base := pos * dim * floatSize
	for i := 0; i < dim; i++ {
		bits := binary.LittleEndian.Uint32(mapped[base+i*floatSize : base+(i+1)*floatSize])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}

func normalizeCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSq float64
	for _, x := range out {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return out
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dotNormalized(normQuery, vec []float32) float64 {
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return 0
	}
	norm := math.Sqrt(sumSq)
	var dot float64
	for i, x := range normQuery {
		dot += float64(x) * (float64(vec[i]) / norm)
	}
	return dot
}

type scoredEntry struct {
	pos   int
	score float64
}

// insertTopK maintains a small sorted-descending slice of the best k
// entries seen so far; N is typically small enough (thousands of
// chunks) that this linear insert beats heap overhead.
func insertTopK(top []scoredEntry, cand scoredEntry, k int) []scoredEntry {
	if k <= 0 {
		return top
	}
	if len(top) < k {
		top = append(top, cand)
		sortDesc(top)
		return top
	}
	if cand.score <= top[len(top)-1].score {
		return top
	}
	top[len(top)-1] = cand
	sortDesc(top)
	return top
}

func sortDesc(top []scoredEntry) {
	for i := len(top) - 1; i > 0; i-- {
		if top[i].score > top[i-1].score {
			top[i], top[i-1] = top[i-1], top[i]
		} else {
			break
		}
	}
}

func (idx *Index) loadMetadataAt(positions []int) ([]Metadata, error) {
	want := map[int]bool{}
	for _, p := range positions {
		want[p] = true
	}

	f, err := os.Open(idx.layout.MetadataPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	found := map[int]Metadata{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	i := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if want[i] {
			var m Metadata
			if err := json.Unmarshal(line, &m); err != nil {
				return nil, errs.Wrap(errs.ErrStorageCorrupt, "parse metadata line", err)
			}
			found[i] = m
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]Metadata, len(positions))
	for i, p := range positions {
		out[i] = found[p]
	}
	return out, nil
}

// Rebuild writes a complete fresh index to vectors.bin.new /
// metadata.jsonl.new and renames both into place atomically (§4.4),
// used when a dim mismatch or corrupted metadata line is detected, or
// on operator request.
func Rebuild(ctx context.Context, dir string, chunks []store.Chunk, o oracle.Oracle) (*Index, error) {
	layout := NewLayout(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	tmp := &Index{layout: Layout{Dir: dir}}
	_ = os.Remove(layout.VectorsNewPath())
	_ = os.Remove(layout.MetadataNewPath())

	// Build against the .new files by constructing a scratch Index whose
	// layout paths alias the .new names.
	scratch := &scratchIndex{vectorsPath: layout.VectorsNewPath(), metadataPath: layout.MetadataNewPath(), dimPath: layout.DimPath() + ".new"}
	if err := scratch.build(ctx, chunks, o); err != nil {
		return nil, err
	}

	if err := os.Rename(layout.VectorsNewPath(), layout.VectorsPath()); err != nil {
		return nil, err
	}
	if err := os.Rename(layout.MetadataNewPath(), layout.MetadataPath()); err != nil {
		return nil, err
	}
	if err := os.Rename(scratch.dimPath, layout.DimPath()); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return tmp, nil
}

// scratchIndex builds a brand-new index at arbitrary file paths, used
// by Rebuild before the atomic rename into place.
type scratchIndex struct {
	vectorsPath  string
	metadataPath string
	dimPath      string
}

func (s *scratchIndex) build(ctx context.Context, chunks []store.Chunk, o oracle.Oracle) error {
	vf, err := os.OpenFile(s.vectorsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer vf.Close()
	mf, err := os.OpenFile(s.metadataPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer mf.Close()

	dim := 0
	sinceFlush := 0
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var vec []float32
		embedErr := oracle.WithRetry(ctx, func(ctx context.Context) error {
			v, err := o.Embed(ctx, c.Text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
		if embedErr != nil {
			return embedErr
		}
		if dim == 0 {
			dim = len(vec)
			if err := os.WriteFile(s.dimPath, []byte(fmt.Sprintf("%d", dim)), 0644); err != nil {
				return err
			}
		} else if len(vec) != dim {
			return errs.Wrap(errs.ErrIndexDimMismatch, "embedding dim changed mid-rebuild", nil)
		}

		if err := writeVector(vf, vec); err != nil {
			return err
		}
		if err := vf.Sync(); err != nil {
			return err
		}

		meta := Metadata{
			SessionID: c.SessionID, ChunkIndex: c.ChunkIndex, SourceType: c.SourceType,
			StartTS: c.StartTS, Quality: c.Quality, Text: c.Text, TokenCount: c.TokenCount,
		}
		line, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if _, err := mf.Write(append(line, '\n')); err != nil {
			return err
		}

		sinceFlush++
		if sinceFlush >= flushEvery {
			if err := mf.Sync(); err != nil {
				return err
			}
			sinceFlush = 0
		}
	}
	return mf.Sync()
}
