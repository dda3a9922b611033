// Package stringstore interns strings into dense ids so repeated names
// (entity classes, property names) cross the wire as small integers.
package stringstore

import (
	"errors"
	"fmt"

	"github.com/tsom/server/internal/net/packet"
)

// ID is an interned string handle. Ids start at 0 and grow by one per new
// string.
type ID uint32

var (
	ErrUnknownID = errors.New("stringstore: unknown id")
	ErrGap       = errors.New("stringstore: resync would leave a gap")
	ErrDuplicate = errors.New("stringstore: duplicate string in resync")
)

// Store is the forward (id→string) and reverse (string→id) table. Both
// sides of a connection keep one; the server is the only writer of new ids.
type Store struct {
	strings []string
	ids     map[string]ID
}

func New() *Store {
	return &Store{ids: make(map[string]ID)}
}

// Register returns the id of s, assigning the next one if s is new.
func (st *Store) Register(s string) ID {
	if id, ok := st.ids[s]; ok {
		return id
	}
	id := ID(len(st.strings))
	st.strings = append(st.strings, s)
	st.ids[s] = id
	return id
}

// Lookup returns the string for id.
func (st *Store) Lookup(id ID) (string, error) {
	if int(id) >= len(st.strings) {
		return "", fmt.Errorf("%w: %d (have %d)", ErrUnknownID, id, len(st.strings))
	}
	return st.strings[id], nil
}

// Find returns the id already assigned to s.
func (st *Store) Find(s string) (ID, bool) {
	id, ok := st.ids[s]
	return id, ok
}

func (st *Store) Len() int { return len(st.strings) }

// Next is the id the next Register call would assign.
func (st *Store) Next() ID { return ID(len(st.strings)) }

// BuildPacket returns every string with id >= first, in id order, for a peer
// that already holds the ids below first.
func (st *Store) BuildPacket(first ID) *packet.NetworkStrings {
	p := &packet.NetworkStrings{StartID: uint32(first)}
	if int(first) < len(st.strings) {
		p.Strings = append([]string(nil), st.strings[first:]...)
	}
	return p
}

// FillStore drops every entry with id >= first, reverse entries included,
// then appends strs starting at first. Applying the same delta twice is
// harmless, and a receiver that drifted ahead is rolled back. A rejected
// delta leaves the store as it was.
func (st *Store) FillStore(first ID, strs []string) error {
	if int(first) > len(st.strings) {
		return fmt.Errorf("%w: start %d, have %d", ErrGap, first, len(st.strings))
	}
	seen := make(map[string]struct{}, len(strs))
	for _, s := range strs {
		if id, ok := st.ids[s]; ok && id < first {
			return fmt.Errorf("%w: %q", ErrDuplicate, s)
		}
		if _, ok := seen[s]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicate, s)
		}
		seen[s] = struct{}{}
	}

	for _, s := range st.strings[first:] {
		delete(st.ids, s)
	}
	clear(st.strings[first:])
	st.strings = st.strings[:first]

	for _, s := range strs {
		st.ids[s] = ID(len(st.strings))
		st.strings = append(st.strings, s)
	}
	return nil
}

// Apply is FillStore for a decoded NetworkStrings packet.
func (st *Store) Apply(p *packet.NetworkStrings) error {
	return st.FillStore(ID(p.StartID), p.Strings)
}
