package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/mmap-go"
)

// magicHeader identifies a .ue5vec dense vector file. Format: magic (8
// bytes), uint32 rowCount, uint32 dimensions, then rowCount*dimensions
// little-endian float32 values, row-major, each row pre-normalized to unit
// L2 length by the ingest pipeline.
var magicHeader = [8]byte{'U', 'E', '5', 'V', 'E', 'C', '1', '\n'}

const headerSize = 16 // 8 magic + 4 rowCount + 4 dims

// MmapVectorStore is the spec-mandated dense vector backend: a flat N x D
// float32 matrix, memory-mapped read-only, scored by exact cosine similarity
// over a caller-supplied boolean mask. It never builds a graph and never
// returns an approximate result.
type MmapVectorStore struct {
	mu     sync.RWMutex
	file   *os.File
	region mmap.MMap
	rows   int
	dims   int
	data   []float32 // reinterpreted view over region[headerSize:]
	closed bool
}

// OpenMmapVectorStore maps an existing .ue5vec file read-only.
func OpenMmapVectorStore(path string) (*MmapVectorStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap vector file: %w", err)
	}
	if len(region) < headerSize {
		region.Unmap()
		f.Close()
		return nil, fmt.Errorf("vector file too small: %d bytes", len(region))
	}
	var magic [8]byte
	copy(magic[:], region[:8])
	if magic != magicHeader {
		region.Unmap()
		f.Close()
		return nil, fmt.Errorf("vector file has wrong magic header")
	}
	rows := int(binary.LittleEndian.Uint32(region[8:12]))
	dims := int(binary.LittleEndian.Uint32(region[12:16]))
	wantBytes := headerSize + rows*dims*4
	if len(region) < wantBytes {
		region.Unmap()
		f.Close()
		return nil, fmt.Errorf("vector file truncated: want %d bytes, have %d", wantBytes, len(region))
	}
	s := &MmapVectorStore{file: f, region: region, rows: rows, dims: dims}
	s.data = bytesToFloat32(region[headerSize:wantBytes])
	return s, nil
}

// WriteMmapVectorFile writes a new .ue5vec file from row-major, pre-
// normalized vectors. Used by the ingest pipeline and by tests.
func WriteMmapVectorFile(path string, dims int, rows [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(magicHeader[:]); err != nil {
		return err
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(rows)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(dims))
	if _, err := f.Write(hdr[:]); err != nil {
		return err
	}

	buf := make([]byte, dims*4)
	for _, row := range rows {
		if len(row) != dims {
			return fmt.Errorf("row width %d does not match declared dimensions %d", len(row), dims)
		}
		normalized := l2Normalize(row)
		for i, v := range normalized {
			binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
		}
		if _, err := f.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

// Dimensions reports the configured row width.
func (s *MmapVectorStore) Dimensions() int { return s.dims }

// Count returns the number of rows in the matrix.
func (s *MmapVectorStore) Count() int { return s.rows }

// RowAt copies out the normalized vector at the given row.
func (s *MmapVectorStore) RowAt(row int) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store closed")
	}
	if row < 0 || row >= s.rows {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, s.rows)
	}
	out := make([]float32, s.dims)
	copy(out, s.data[row*s.dims:(row+1)*s.dims])
	return out, nil
}

// Search scores query against every row allowed by mask (nil mask scores
// every row) and returns the top k by cosine similarity descending. Because
// every row vector is pre-normalized and the query is normalized here,
// cosine similarity reduces to a plain dot product.
func (s *MmapVectorStore) Search(ctx context.Context, query []float32, k int, mask *roaring.Bitmap) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store closed")
	}
	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	q := l2Normalize(query)

	results := make([]VectorResult, 0, min(k, s.rows))
	// Keep a bounded, unsorted top-k slice: append until it holds k entries,
	// then replace its current minimum when a row scores higher. Only the k
	// survivors are sorted, so there is no full sort over every row.
	for row := 0; row < s.rows; row++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if mask != nil && !mask.Contains(uint32(row)) {
			continue
		}
		vec := s.data[row*s.dims : (row+1)*s.dims]
		var dot float32
		for i, qv := range q {
			dot += qv * vec[i]
		}
		results = insertTopK(results, VectorResult{VectorIndex: row, Score: dot}, k)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func insertTopK(results []VectorResult, cand VectorResult, k int) []VectorResult {
	if len(results) < k {
		return append(results, cand)
	}
	minIdx, minScore := 0, results[0].Score
	for i, r := range results {
		if r.Score < minScore {
			minIdx, minScore = i, r.Score
		}
	}
	if cand.Score > minScore {
		results[minIdx] = cand
	}
	return results
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Close unmaps the region and closes the underlying file.
func (s *MmapVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.region.Unmap(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
