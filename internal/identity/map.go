// Package identity maintains the bijection between external entity ids and
// vector store positions.
package identity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrNotFound is returned when an id or position has no live binding.
	ErrNotFound = errors.New("identity not found")
	// ErrAlreadyBound is returned by Bind when the id is already mapped.
	ErrAlreadyBound = errors.New("identity already bound")
	// ErrPositionTaken is returned by Bind when another id owns the position.
	ErrPositionTaken = errors.New("position already bound")
)

// Binding pairs an id with its position.
type Binding struct {
	ID       string
	Position uint32
}

// Map is a two-way id/position map. Live positions are kept in a bitmap so
// they can be enumerated in ascending order.
//
// Map is not safe for concurrent use; the owning index manager guards it.
type Map struct {
	forward  map[string]uint32
	backward map[uint32]string
	live     *roaring.Bitmap
}

// New returns an empty map.
func New() *Map {
	return &Map{
		forward:  make(map[string]uint32),
		backward: make(map[uint32]string),
		live:     roaring.New(),
	}
}

// FromEntries rebuilds a map from persisted bindings. Two ids sharing a
// position is an error.
func FromEntries(entries map[string]uint32) (*Map, error) {
	m := New()
	// Bind in sorted order so the reported conflict is deterministic.
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := m.Bind(id, entries[id]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Bind records id at pos.
func (m *Map) Bind(id string, pos uint32) error {
	if _, ok := m.forward[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, id)
	}
	if owner, ok := m.backward[pos]; ok {
		return fmt.Errorf("%w: %d owned by %s", ErrPositionTaken, pos, owner)
	}
	m.forward[id] = pos
	m.backward[pos] = id
	m.live.Add(pos)
	return nil
}

// Resolve returns the position bound to id.
func (m *Map) Resolve(id string) (uint32, error) {
	pos, ok := m.forward[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return pos, nil
}

// Unbind removes id in both directions and returns the position it held.
func (m *Map) Unbind(id string) (uint32, error) {
	pos, ok := m.forward[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.forward, id)
	delete(m.backward, pos)
	m.live.Remove(pos)
	return pos, nil
}

// Reverse returns the id bound to pos.
func (m *Map) Reverse(pos uint32) (string, error) {
	id, ok := m.backward[pos]
	if !ok {
		return "", fmt.Errorf("%w: position %d", ErrNotFound, pos)
	}
	return id, nil
}

// IsLive reports whether pos is bound.
func (m *Map) IsLive(pos uint32) bool {
	return m.live.Contains(pos)
}

// Len returns the number of live bindings.
func (m *Map) Len() int {
	return len(m.forward)
}

// Live returns all bindings in ascending position order.
func (m *Map) Live() []Binding {
	out := make([]Binding, 0, len(m.forward))
	it := m.live.Iterator()
	for it.HasNext() {
		pos := it.Next()
		out = append(out, Binding{ID: m.backward[pos], Position: pos})
	}
	return out
}

// Entries returns a copy of the forward map.
func (m *Map) Entries() map[string]uint32 {
	out := make(map[string]uint32, len(m.forward))
	for id, pos := range m.forward {
		out[id] = pos
	}
	return out
}

// MaxPosition returns the highest live position and false when the map is empty.
func (m *Map) MaxPosition() (uint32, bool) {
	if m.live.IsEmpty() {
		return 0, false
	}
	return m.live.Maximum(), true
}
