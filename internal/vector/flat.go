package vector

import (
	"fmt"
	"sort"
)

// FlatStore is an in-memory store using brute-force inner product search over a
// contiguous arena. Search cost is linear in Size; this is the exact baseline.
type FlatStore struct {
	dimensions int
	data       []float32 // len(data) == size*dimensions
}

// NewFlatStore creates an empty flat store with the given dimension.
func NewFlatStore(dimensions int) (*FlatStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatStore{dimensions: dimensions}, nil
}

// Type returns the store type identifier.
func (f *FlatStore) Type() string {
	return string(StoreTypeFlat)
}

// Dimensions returns the fixed vector dimension.
func (f *FlatStore) Dimensions() int {
	return f.dimensions
}

// Append copies vec into the arena.
func (f *FlatStore) Append(vec []float32) (uint32, error) {
	if err := checkDimension(f.dimensions, vec); err != nil {
		return 0, err
	}
	pos := uint32(f.Size())
	f.data = append(f.data, vec...)
	return pos, nil
}

// Get returns a copy of the vector at pos.
func (f *FlatStore) Get(pos uint32) ([]float32, error) {
	if int(pos) >= f.Size() {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, pos, f.Size())
	}
	start := int(pos) * f.dimensions
	out := make([]float32, f.dimensions)
	copy(out, f.data[start:start+f.dimensions])
	return out, nil
}

// Search scores every stored vector against query and returns the top k.
func (f *FlatStore) Search(query []float32, k int) ([]Hit, error) {
	if err := checkDimension(f.dimensions, query); err != nil {
		return nil, err
	}
	n := f.Size()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		start := i * f.dimensions
		hits[i] = Hit{
			Position: uint32(i),
			Score:    InnerProduct(query, f.data[start:start+f.dimensions]),
		}
	}
	sortHits(hits)
	if k > n {
		k = n
	}
	return hits[:k], nil
}

// Size returns the number of stored vectors.
func (f *FlatStore) Size() int {
	return len(f.data) / f.dimensions
}

// Close is a no-op for FlatStore.
func (f *FlatStore) Close() error {
	return nil
}

// sortHits orders hits by descending score, breaking ties by ascending position.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
}
