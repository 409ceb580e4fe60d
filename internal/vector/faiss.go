//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// FAISSStore is a Store backed by a FAISS IndexFlatIP. FAISS labels are the
// sequential insertion order, which is exactly the Store position contract.
type FAISSStore struct {
	index      *C.FaissIndexFlatIP
	dimensions int
}

// NewFAISSStore creates a FAISS flat inner-product store with the given dimension.
func NewFAISSStore(dimensions int) (*FAISSStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var index *C.FaissIndexFlatIP
	ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions))
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSStore{index: index, dimensions: dimensions}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Type returns the store type identifier.
func (f *FAISSStore) Type() string {
	return string(StoreTypeFAISS)
}

// Dimensions returns the fixed vector dimension.
func (f *FAISSStore) Dimensions() int {
	return f.dimensions
}

// Append adds one vector to the FAISS index.
func (f *FAISSStore) Append(vec []float32) (uint32, error) {
	if err := checkDimension(f.dimensions, vec); err != nil {
		return 0, err
	}
	pos := uint32(f.Size())
	buf := make([]float32, f.dimensions)
	copy(buf, vec)
	ret := C.faiss_Index_add(f.index, 1, (*C.float)(unsafe.Pointer(&buf[0])))
	if ret != 0 {
		return 0, fmt.Errorf("failed to add vector to FAISS index: %s", faissLastError())
	}
	return pos, nil
}

// Get reconstructs the vector stored at pos.
func (f *FAISSStore) Get(pos uint32) ([]float32, error) {
	if int(pos) >= f.Size() {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, pos, f.Size())
	}
	out := make([]float32, f.dimensions)
	ret := C.faiss_Index_reconstruct(f.index, C.idx_t(pos), (*C.float)(unsafe.Pointer(&out[0])))
	if ret != 0 {
		return nil, fmt.Errorf("FAISS reconstruct %d: %s", pos, faissLastError())
	}
	return out, nil
}

// Search runs an exact inner-product search in FAISS.
func (f *FAISSStore) Search(query []float32, k int) ([]Hit, error) {
	if err := checkDimension(f.dimensions, query); err != nil {
		return nil, err
	}
	ntotal := f.Size()
	if k <= 0 || ntotal == 0 {
		return nil, nil
	}
	if k > ntotal {
		k = ntotal
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		hits = append(hits, Hit{Position: uint32(labels[i]), Score: float64(distances[i])})
	}
	// FAISS orders ties arbitrarily.
	sortHits(hits)
	return hits, nil
}

// Size returns the number of vectors in the FAISS index.
func (f *FAISSStore) Size() int {
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Close frees the FAISS index resources.
func (f *FAISSStore) Close() error {
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
