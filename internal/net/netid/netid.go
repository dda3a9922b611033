// Package netid maps server-local objects (chunks, entities) to the small
// integers that stand in for them on the wire.
package netid

import (
	"errors"
	"fmt"
	"sort"
)

// Index is a network index. It is meaningful only within one connection
// epoch and is never persisted.
type Index uint32

var (
	ErrObjectMapped = errors.New("netid: object already mapped")
	ErrIndexMapped  = errors.New("netid: index already mapped")
	ErrExhausted    = errors.New("netid: index space exhausted")
)

// Map is a bijection between objects and indices. Every mutation updates
// both directions together.
type Map[T comparable] struct {
	byIndex  map[Index]T
	byObject map[T]Index
	next     Index
}

func NewMap[T comparable]() *Map[T] {
	return &Map[T]{
		byIndex:  make(map[Index]T),
		byObject: make(map[T]Index),
	}
}

// Add maps obj to idx. Either side already being mapped is a programming
// error and leaves the map untouched.
func (m *Map[T]) Add(obj T, idx Index) error {
	if old, ok := m.byObject[obj]; ok {
		return fmt.Errorf("%w: %v has index %d", ErrObjectMapped, obj, old)
	}
	if _, ok := m.byIndex[idx]; ok {
		return fmt.Errorf("%w: %d", ErrIndexMapped, idx)
	}
	m.byIndex[idx] = obj
	m.byObject[obj] = idx
	if idx >= m.next {
		m.next = idx + 1
	}
	return nil
}

// Allocate maps obj to a fresh index. Indices handed out by Allocate only
// grow, so a removed index is not recycled while clients may still hold
// packets that refer to it.
func (m *Map[T]) Allocate(obj T) (Index, error) {
	if old, ok := m.byObject[obj]; ok {
		return 0, fmt.Errorf("%w: %v has index %d", ErrObjectMapped, obj, old)
	}
	if _, taken := m.byIndex[m.next]; taken || m.next == ^Index(0) {
		return 0, ErrExhausted
	}
	idx := m.next
	m.byIndex[idx] = obj
	m.byObject[obj] = idx
	m.next++
	return idx, nil
}

// Object returns the object mapped to idx.
func (m *Map[T]) Object(idx Index) (T, bool) {
	obj, ok := m.byIndex[idx]
	return obj, ok
}

// Index returns the index mapped to obj.
func (m *Map[T]) Index(obj T) (Index, bool) {
	idx, ok := m.byObject[obj]
	return idx, ok
}

// Remove unmaps obj and its index. It returns the removed index.
func (m *Map[T]) Remove(obj T) (Index, bool) {
	idx, ok := m.byObject[obj]
	if !ok {
		return 0, false
	}
	delete(m.byObject, obj)
	delete(m.byIndex, idx)
	return idx, true
}

// RemoveIndex unmaps idx and its object. It returns the removed object.
func (m *Map[T]) RemoveIndex(idx Index) (T, bool) {
	obj, ok := m.byIndex[idx]
	if !ok {
		return obj, false
	}
	delete(m.byIndex, idx)
	delete(m.byObject, obj)
	return obj, true
}

func (m *Map[T]) Len() int { return len(m.byIndex) }

// Each visits every pair in ascending index order.
func (m *Map[T]) Each(fn func(idx Index, obj T)) {
	keys := make([]Index, 0, len(m.byIndex))
	for idx := range m.byIndex {
		keys = append(keys, idx)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, idx := range keys {
		fn(idx, m.byIndex[idx])
	}
}

// Reset forgets every mapping. Used when a connection epoch ends.
func (m *Map[T]) Reset() {
	clear(m.byIndex)
	clear(m.byObject)
	m.next = 0
}
