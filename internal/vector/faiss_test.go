//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"errors"
	"testing"
)

func TestFAISSStore_AppendSearch(t *testing.T) {
	s, err := NewFAISSStore(3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	for i, v := range vecs {
		pos, err := s.Append(v)
		if err != nil {
			t.Fatal(err)
		}
		if int(pos) != i {
			t.Errorf("position = %d, want %d", pos, i)
		}
	}

	hits, err := s.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Position != 0 || hits[1].Position != 1 {
		t.Errorf("unexpected hits: %v", hits)
	}
}

func TestFAISSStore_GetReconstructs(t *testing.T) {
	s, err := NewFAISSStore(2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_, _ = s.Append([]float32{0.6, 0.8})
	got, err := s.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0.6 || got[1] != 0.8 {
		t.Errorf("Get(0) = %v", got)
	}
	if _, err := s.Get(1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Get(1) err = %v, want ErrOutOfRange", err)
	}
}

func TestFAISSStore_DimensionMismatch(t *testing.T) {
	s, err := NewFAISSStore(3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Append([]float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Append err = %v", err)
	}
}
