// Package persist saves and restores index state: the vector region and the
// identity region of each entity class.
package persist

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoSnapshot is returned by Load when nothing was saved for the class.
	ErrNoSnapshot = errors.New("no snapshot")
	// ErrCorruptState is returned by Load when a saved image fails validation.
	ErrCorruptState = errors.New("corrupt snapshot")
)

// Snapshot is a point-in-time copy of one class's index.
type Snapshot struct {
	Dimension int
	StoreType string
	// Embedder names the provider that produced Vectors, e.g. "mock".
	Embedder string
	Vectors  [][]float32
	Bindings map[string]uint32
}

// Adapter stores snapshots keyed by class name.
type Adapter interface {
	Save(ctx context.Context, class string, snap *Snapshot) error
	Load(ctx context.Context, class string) (*Snapshot, error)
}

// Validate checks the cross-region invariants: every vector has the snapshot
// dimension and every binding points at a distinct position below the vector count.
func (s *Snapshot) Validate() error {
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrCorruptState, s.Dimension)
	}
	for i, v := range s.Vectors {
		if len(v) != s.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrCorruptState, i, len(v), s.Dimension)
		}
	}
	seen := make(map[uint32]string, len(s.Bindings))
	for id, pos := range s.Bindings {
		if int(pos) >= len(s.Vectors) {
			return fmt.Errorf("%w: %s bound to position %d beyond %d vectors", ErrCorruptState, id, pos, len(s.Vectors))
		}
		if other, ok := seen[pos]; ok {
			return fmt.Errorf("%w: position %d bound to both %s and %s", ErrCorruptState, pos, other, id)
		}
		seen[pos] = id
	}
	return nil
}

func encode(snap *Snapshot) (vectors, idmap []byte, err error) {
	if err := snap.Validate(); err != nil {
		return nil, nil, fmt.Errorf("refusing to save: %w", err)
	}
	vectors, err = EncodeVectors(snap.StoreType, snap.Dimension, snap.Vectors)
	if err != nil {
		return nil, nil, err
	}
	idmap, err = EncodeBindings(&IdentityRegion{
		VectorsCRC: VectorsChecksum(vectors),
		Embedder:   snap.Embedder,
		Bindings:   snap.Bindings,
	})
	if err != nil {
		return nil, nil, err
	}
	return vectors, idmap, nil
}

func decode(vectors, idmap []byte) (*Snapshot, error) {
	storeType, dim, vecs, err := DecodeVectors(vectors)
	if err != nil {
		return nil, err
	}
	region, err := DecodeBindings(idmap)
	if err != nil {
		return nil, err
	}
	if sum := VectorsChecksum(vectors); region.VectorsCRC != sum {
		return nil, fmt.Errorf("%w: identity region was saved with vector region %08x, found %08x",
			ErrCorruptState, region.VectorsCRC, sum)
	}
	snap := &Snapshot{
		Dimension: dim,
		StoreType: storeType,
		Embedder:  region.Embedder,
		Vectors:   vecs,
		Bindings:  region.Bindings,
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
