package ecs

import "sort"

// Removable is implemented by every component store so a World can strip a
// destroyed entity from all of them.
type Removable interface {
	Remove(id EntityID) bool
}

// Store holds one component type, keyed by entity.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{data: make(map[EntityID]*T, 256)}
}

func (s *Store[T]) Set(id EntityID, c *T) { s.data[id] = c }

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Remove(id EntityID) bool {
	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

func (s *Store[T]) Len() int { return len(s.data) }

// Each visits components in ascending slot order. Replication output is
// built from these walks, so the order has to be stable between ticks.
func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for _, id := range s.sortedIDs() {
		fn(id, s.data[id])
	}
}

func (s *Store[T]) sortedIDs() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Index() < ids[j].Index() })
	return ids
}
