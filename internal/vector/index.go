// Package vector provides append-only vector stores with exact inner-product search.
package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrOutOfRange is returned by Get for a position at or beyond the store size.
	ErrOutOfRange = errors.New("position out of range")
)

// DimensionError reports the expected and actual dimension of a rejected vector.
// It matches ErrDimensionMismatch with errors.Is.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: got %d, expected %d", ErrDimensionMismatch, e.Actual, e.Expected)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Store is an append-only collection of fixed-dimension vectors addressed by dense positions.
// Positions are assigned in insertion order starting at 0 and are never reused; a store only
// shrinks by being replaced with a freshly built one.
//
// Implementations are not required to be safe for concurrent mutation; the index manager
// serializes writers. Concurrent readers are allowed.
type Store interface {
	// Append stores a copy of vec and returns its position (the prior size).
	Append(vec []float32) (uint32, error)
	// Get returns a copy of the vector at pos.
	Get(pos uint32) ([]float32, error)
	// Search returns up to k hits by descending inner product, ties by ascending position.
	Search(query []float32, k int) ([]Hit, error)
	// Size returns the number of stored vectors, including logically deleted ones.
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Hit is a single search result.
type Hit struct {
	Position uint32
	Score    float64 // inner product; cosine similarity for unit vectors
}

func checkDimension(expected int, vec []float32) error {
	if len(vec) != expected {
		return &DimensionError{Expected: expected, Actual: len(vec)}
	}
	return nil
}
