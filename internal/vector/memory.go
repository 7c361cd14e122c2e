package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search. The dimension is
// fixed by the first Add (or Load) when the index is created with zero dimensions, since the
// embedding runtime only reports it on the first call.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	position   map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index. Zero dimensions means "infer on first Add".
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		position:   make(map[string]int),
	}, nil
}

// Add stores vectors with the given IDs. An existing ID is overwritten.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if m.dimensions == 0 {
			m.dimensions = len(vectors[i])
		}
		if len(vectors[i]) != m.dimensions || m.dimensions == 0 {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		if pos, ok := m.position[id]; ok {
			m.vectors[pos] = vec
			continue
		}
		m.position[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

type scored struct {
	pos   int
	score float64
}

// rank scores every vector against query, highest first. Equal scores keep insertion order.
func (m *MemoryIndex) rank(query []float32) ([]scored, error) {
	if len(m.ids) == 0 {
		return nil, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	scores := make([]scored, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = scored{pos: i, score: CosineSimilarity(query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	return scores, nil
}

// Search returns the top-k vectors by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	scores, err := m.rank(query)
	if err != nil {
		return nil, err
	}
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*VectorResult, k)
	for i := 0; i < k; i++ {
		result[i] = &VectorResult{ID: m.ids[scores[i].pos], Score: scores[i].score}
	}
	return result, nil
}

// MaxMarginalRelevance fetches the fetchK nearest vectors and greedily selects k of them,
// maximizing lambda*relevance - (1-lambda)*max similarity to already selected vectors.
// Returned scores are the query relevance, not the MMR objective.
func (m *MemoryIndex) MaxMarginalRelevance(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]*VectorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	scores, err := m.rank(query)
	if err != nil {
		return nil, err
	}
	if fetchK < k {
		fetchK = k
	}
	if fetchK > len(scores) {
		fetchK = len(scores)
	}
	remaining := scores[:fetchK]
	selected := make([]scored, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := CosineSimilarity(m.vectors[cand.pos], m.vectors[sel.pos]); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*cand.score - (1-lambda)*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx:bestIdx], remaining[bestIdx+1:]...)
	}
	result := make([]*VectorResult, len(selected))
	for i, s := range selected {
		result[i] = &VectorResult{ID: m.ids[s.pos], Score: s.score}
	}
	return result, nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newIDs := make([]string, 0, len(m.ids))
	newVectors := make([][]float32, 0, len(m.vectors))
	m.position = make(map[string]int, len(m.ids))
	for i, id := range m.ids {
		if !removeSet[id] {
			m.position[id] = len(newIDs)
			newIDs = append(newIDs, id)
			newVectors = append(newVectors, m.vectors[i])
		}
	}
	m.ids = newIDs
	m.vectors = newVectors
	return nil
}

// Reset drops every vector. The dimension is kept only if it was fixed at construction.
func (m *MemoryIndex) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.vectors = nil
	m.position = make(map[string]int)
	return nil
}

// Save persists the index to path, writing a temp file and renaming it over the target.
// Format: dimension (4), n (4), then per vector: idLen (4), id bytes, vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range m.ids {
		idBytes := []byte(id)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := w.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. A fixed dimension must
// match the file; a zero dimension is taken from it. A missing file leaves the index unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	position := make(map[string]int, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		position[string(idBytes)] = len(ids)
		ids = append(ids, string(idBytes))
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	m.dimensions = int(dim)
	m.ids, m.vectors, m.position = ids, vectors, position
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector dimension, or 0 while still unknown.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
