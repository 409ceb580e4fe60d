package identity

import (
	"errors"
	"testing"
)

func TestMap_BindResolveReverse(t *testing.T) {
	m := New()
	if err := m.Bind("alice", 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Bind("bob", 1); err != nil {
		t.Fatal(err)
	}

	pos, err := m.Resolve("bob")
	if err != nil || pos != 1 {
		t.Errorf("Resolve(bob) = %d, %v", pos, err)
	}
	id, err := m.Reverse(0)
	if err != nil || id != "alice" {
		t.Errorf("Reverse(0) = %q, %v", id, err)
	}
	if m.Len() != 2 {
		t.Errorf("Len=%d, want 2", m.Len())
	}
}

func TestMap_BindConflicts(t *testing.T) {
	m := New()
	_ = m.Bind("alice", 0)

	if err := m.Bind("alice", 5); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("rebinding id: err = %v, want ErrAlreadyBound", err)
	}
	if err := m.Bind("bob", 0); !errors.Is(err, ErrPositionTaken) {
		t.Errorf("reusing position: err = %v, want ErrPositionTaken", err)
	}
	if pos, _ := m.Resolve("alice"); pos != 0 {
		t.Errorf("failed bind must not change existing binding, pos=%d", pos)
	}
}

func TestMap_Unbind(t *testing.T) {
	m := New()
	_ = m.Bind("alice", 0)
	_ = m.Bind("bob", 1)

	pos, err := m.Unbind("alice")
	if err != nil || pos != 0 {
		t.Fatalf("Unbind = %d, %v", pos, err)
	}
	if _, err := m.Resolve("alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve after Unbind: %v", err)
	}
	if _, err := m.Reverse(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reverse after Unbind: %v", err)
	}
	if m.IsLive(0) {
		t.Error("position 0 should not be live")
	}
	if !m.IsLive(1) {
		t.Error("position 1 should be live")
	}
	if _, err := m.Unbind("alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Unbind: %v", err)
	}
}

func TestMap_LiveAscending(t *testing.T) {
	m := New()
	_ = m.Bind("c", 7)
	_ = m.Bind("a", 2)
	_ = m.Bind("b", 4)
	_ = m.Bind("d", 9)
	_, _ = m.Unbind("b")

	live := m.Live()
	want := []Binding{{"a", 2}, {"c", 7}, {"d", 9}}
	if len(live) != len(want) {
		t.Fatalf("Live = %v, want %v", live, want)
	}
	for i := range want {
		if live[i] != want[i] {
			t.Errorf("Live[%d] = %v, want %v", i, live[i], want[i])
		}
	}
	if max, ok := m.MaxPosition(); !ok || max != 9 {
		t.Errorf("MaxPosition = %d, %v", max, ok)
	}
}

func TestMap_EntriesIsCopy(t *testing.T) {
	m := New()
	_ = m.Bind("alice", 0)
	e := m.Entries()
	e["mallory"] = 3
	if m.Len() != 1 {
		t.Errorf("mutating Entries must not affect the map")
	}
}

func TestFromEntries(t *testing.T) {
	m, err := FromEntries(map[string]uint32{"a": 0, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := m.Reverse(2); id != "b" {
		t.Errorf("Reverse(2) = %q", id)
	}

	_, err = FromEntries(map[string]uint32{"a": 1, "b": 1})
	if !errors.Is(err, ErrPositionTaken) {
		t.Errorf("duplicate position: err = %v, want ErrPositionTaken", err)
	}
}

func TestMap_EmptyMaxPosition(t *testing.T) {
	if _, ok := New().MaxPosition(); ok {
		t.Error("empty map should report no max position")
	}
}
