package vecindex

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot layout: 4-byte magic, uint32 format version, uint32 dimension,
// uint64 count, then count*dimension little-endian float32 values. A sidecar
// manifest (<path>.meta.json) stamps the snapshot with its generation and the
// embedding model it was built against.
const (
	snapshotMagic   = "PLVX"
	snapshotVersion = 1
)

// Manifest ties a snapshot file to one index generation.
type Manifest struct {
	Generation string    `json:"generation"`
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func manifestPath(path string) string {
	return path + ".meta.json"
}

// Persist writes the whole index to disk. The snapshot is written to a
// temporary file and renamed into place, so readers never observe a torn
// write. Snapshotting after every mutation trades write throughput for
// durability, which is acceptable for human-rate memory writes.
func (idx *Index) Persist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	return idx.persistLocked()
}

func (idx *Index) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("vecindex: create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(idx.path), ".pathlight-idx-*")
	if err != nil {
		return fmt.Errorf("vecindex: create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeSnapshot(tmp, idx.dim, idx.count, idx.data); err != nil {
		tmp.Close()
		return fmt.Errorf("vecindex: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vecindex: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), idx.path); err != nil {
		return fmt.Errorf("vecindex: replace snapshot: %w", err)
	}

	m := Manifest{
		Generation: idx.generation,
		Model:      idx.model,
		Dimension:  idx.dim,
		Count:      idx.count,
		UpdatedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("vecindex: marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(idx.path), data, 0o644); err != nil {
		return fmt.Errorf("vecindex: write manifest: %w", err)
	}
	idx.dirty = false
	return nil
}

// Reload replaces the in-memory index with the latest on-disk snapshot.
// Reader processes call this to pick up vectors written by the canonical
// writer. Reload refuses with ErrDirty while local vectors have not been
// snapshotted yet: dropping them would re-issue their positions within the
// current generation.
func (idx *Index) Reload() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if idx.dirty {
		return ErrDirty
	}
	loaded, err := idx.loadLocked()
	if err != nil {
		return err
	}
	if !loaded {
		return fmt.Errorf("vecindex: no snapshot at %s", idx.path)
	}
	return nil
}

// loadSnapshot is the Open-time load: it holds no lock because the index is
// not yet shared.
func (idx *Index) loadSnapshot() (bool, error) {
	return idx.loadLocked()
}

func (idx *Index) loadLocked() (bool, error) {
	f, err := os.Open(idx.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vecindex: open snapshot: %w", err)
	}
	defer f.Close()

	dim, count, data, err := readSnapshot(f)
	if err != nil {
		return false, fmt.Errorf("vecindex: read snapshot %s: %w", idx.path, err)
	}

	m, err := readManifest(manifestPath(idx.path))
	if err != nil {
		return false, err
	}

	// A snapshot built against a different model or dimension is stale in
	// its entirety: start a fresh generation instead of serving vectors
	// that no longer line up with the configured embedder.
	if m == nil || m.Model != idx.model || (idx.dim != 0 && m.Dimension != idx.dim) {
		idx.logger.Warn("vector index snapshot does not match configured embedder, starting fresh generation",
			zap.String("path", idx.path),
			zap.String("configured_model", idx.model),
			zap.Int("configured_dimension", idx.dim))
		idx.data = nil
		idx.count = 0
		idx.generation = uuid.New().String()
		return false, nil
	}

	idx.dim = dim
	idx.count = count
	idx.data = data
	idx.generation = m.Generation
	return true, nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vecindex: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("vecindex: parse manifest %s: %w", path, err)
	}
	return &m, nil
}

func writeSnapshot(w io.Writer, dim, count int, data []float32) error {
	if _, err := w.Write([]byte(snapshotMagic)); err != nil {
		return err
	}
	header := []any{uint32(snapshotVersion), uint32(dim), uint64(count)}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	buf := make([]byte, 4)
	for _, v := range data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(r io.Reader) (dim, count int, data []float32, err error) {
	magic := make([]byte, 4)
	if _, err = io.ReadFull(r, magic); err != nil {
		return 0, 0, nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return 0, 0, nil, fmt.Errorf("bad magic %q", magic)
	}

	var version, dim32 uint32
	var count64 uint64
	if err = binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, 0, nil, fmt.Errorf("read version: %w", err)
	}
	if version != snapshotVersion {
		return 0, 0, nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	if err = binary.Read(r, binary.LittleEndian, &dim32); err != nil {
		return 0, 0, nil, fmt.Errorf("read dimension: %w", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &count64); err != nil {
		return 0, 0, nil, fmt.Errorf("read count: %w", err)
	}

	dim = int(dim32)
	count = int(count64)
	data = make([]float32, dim*count)
	buf := make([]byte, 4)
	for i := range data {
		if _, err = io.ReadFull(r, buf); err != nil {
			return 0, 0, nil, fmt.Errorf("read vector data: %w", err)
		}
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	}
	return dim, count, data, nil
}
