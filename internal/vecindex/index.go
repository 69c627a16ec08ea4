// Package vecindex implements a flat inner-product nearest-neighbor index
// over unit-normalized vectors, persisted as a single snapshot file.
//
// The index is append-only: positions are 0-based, monotonically increasing
// and unique for the lifetime of one index generation. There is no delete or
// update primitive; editing or removing content upstream leaves an orphan
// vector behind, which is an accepted cost of the design.
//
// Mutations are serialized behind a single writer lock within one process.
// This serialization does not extend across processes: a deployment with
// multiple processes must route writes through one canonical writer and have
// readers pick up new snapshots via Reload with a bounded staleness window.
package vecindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned for any operation on a closed index.
	ErrClosed = errors.New("vecindex: index closed")
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index dimension.
	ErrDimensionMismatch = errors.New("vecindex: dimension mismatch")
	// ErrDirty is returned when Reload would discard vectors added locally
	// since the last snapshot. Discarding them would let Add re-issue their
	// positions within the same generation.
	ErrDirty = errors.New("vecindex: unsnapshotted local writes")
)

// Hit is a single nearest-neighbor candidate.
type Hit struct {
	Position int     `json:"position"`
	Score    float32 `json:"score"`
}

// Index is a flat inner-product index. Vectors are normalized on insert, so
// inner product equals cosine similarity.
type Index struct {
	mu         sync.RWMutex
	dim        int
	data       []float32 // flattened row-major, count*dim
	count      int
	dirty      bool // vectors added since the last successful snapshot
	closed     bool
	path       string
	model      string
	generation string
	logger     *zap.Logger
}

// Open loads the index snapshot at path, or starts a fresh generation when no
// snapshot exists or the stored manifest disagrees with the configured
// embedding model. A model or dimension change invalidates every persisted
// vector position; affected records stay reachable through the keyword path
// until they are re-embedded against the new generation.
func Open(path, model string, dim int, logger *zap.Logger) (*Index, error) {
	idx := &Index{
		dim:        dim,
		path:       path,
		model:      model,
		generation: uuid.New().String(),
		logger:     logger,
	}

	loaded, err := idx.loadSnapshot()
	if err != nil {
		return nil, err
	}
	if !loaded {
		if err := idx.persistLocked(); err != nil {
			return nil, fmt.Errorf("vecindex: write initial snapshot: %w", err)
		}
		logger.Info("vector index created",
			zap.String("path", path),
			zap.String("generation", idx.generation),
			zap.Int("dimension", idx.dim))
	} else {
		logger.Info("vector index loaded",
			zap.String("path", path),
			zap.String("generation", idx.generation),
			zap.Int("vectors", idx.count))
	}
	return idx, nil
}

// Add appends a vector and returns its position. The stored copy is
// normalized; the caller's slice is not modified.
func (idx *Index) Add(vec []float32) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return 0, ErrClosed
	}
	if idx.dim == 0 {
		// Dimension is pinned by the first vector when the configured
		// embedder did not report one up front.
		idx.dim = len(vec)
	}
	if len(vec) != idx.dim {
		return 0, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), idx.dim)
	}

	idx.data = append(idx.data, normalize(vec)...)
	pos := idx.count
	idx.count++
	idx.dirty = true
	return pos, nil
}

// Search returns up to k positions ranked by descending inner product with
// the normalized query. An empty index yields an empty result, never an error.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}
	if idx.count == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), idx.dim)
	}

	q := normalize(query)
	hits := make([]Hit, 0, idx.count)
	for i := 0; i < idx.count; i++ {
		row := idx.data[i*idx.dim : (i+1)*idx.dim]
		var dot float32
		for j, v := range row {
			dot += v * q[j]
		}
		hits = append(hits, Hit{Position: i, Score: dot})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of stored vectors.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Dimension returns the index dimension (0 until the first Add when the
// embedder did not report a dimension).
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Generation returns the current generation stamp. Vector positions are only
// meaningful relative to one generation.
func (idx *Index) Generation() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// Path returns the snapshot file path.
func (idx *Index) Path() string {
	return idx.path
}

// Ready reports whether the index accepts operations.
func (idx *Index) Ready() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return !idx.closed
}

// Close marks the index unusable. Subsequent calls fail with ErrClosed.
func (idx *Index) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
}

// normalize returns a unit-length copy of vec. A zero vector is returned as-is.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		copy(out, vec)
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
