package vector

import "fmt"

// StoreType names a Store implementation.
type StoreType string

const (
	// StoreTypeFlat uses in-memory brute-force search. Exact; good up to ~100k vectors.
	StoreTypeFlat StoreType = "flat"
	// StoreTypeFAISS uses a FAISS IndexFlatIP for the scan.
	// Requires FAISS library and build tag -tags=faiss.
	StoreTypeFAISS StoreType = "faiss"
)

// NewStore creates a store of the given type.
// Supported types: "flat" (default, also "memory" and ""), "faiss".
func NewStore(storeType string, dimensions int) (Store, error) {
	switch StoreType(storeType) {
	case StoreTypeFlat, "memory", "":
		s, err := NewFlatStore(dimensions)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreTypeFAISS:
		s, err := NewFAISSStore(dimensions)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: flat, faiss)", storeType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	s, err := NewFAISSStore(1)
	if err != nil {
		return false
	}
	_ = s.Close()
	return true
}
