//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"errors"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSStore is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSStore struct{}

// NewFAISSStore returns an error because FAISS is not available.
func NewFAISSStore(dimensions int) (*FAISSStore, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSStore) Append(vec []float32) (uint32, error)        { return 0, errFAISSUnavailable }
func (f *FAISSStore) Get(pos uint32) ([]float32, error)           { return nil, errFAISSUnavailable }
func (f *FAISSStore) Search(query []float32, k int) ([]Hit, error) { return nil, errFAISSUnavailable }
func (f *FAISSStore) Size() int                                   { return 0 }
func (f *FAISSStore) Dimensions() int                             { return 0 }
func (f *FAISSStore) Type() string                                { return string(StoreTypeFAISS) }
func (f *FAISSStore) Close() error                                { return nil }
