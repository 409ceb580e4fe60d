package embedding

import (
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")              // a is now most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(4)
	in := []float32{1, 2}
	c.Set("a", in)
	in[0] = 9
	got, _ := c.Get("a")
	if got[0] != 1 {
		t.Errorf("cache aliased caller slice: %v", got)
	}
	got[1] = 9
	again, _ := c.Get("a")
	if again[1] != 2 {
		t.Errorf("cache aliased returned slice: %v", again)
	}
}

func TestCache_Stats(t *testing.T) {
	c := NewCache(1)
	c.Get("x")
	c.Set("x", []float32{1})
	c.Get("x")
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCache_ZeroCapacity(t *testing.T) {
	c := NewCache(0)
	c.Set("x", []float32{1})
	if _, ok := c.Get("x"); ok {
		t.Error("zero-capacity cache should not store")
	}
}
