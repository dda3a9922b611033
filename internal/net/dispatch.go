package net

import (
	"fmt"

	"github.com/tsom/server/internal/net/packet"
)

// HandlerFunc decodes one packet and runs the typed handler. A non-nil
// return is always a decode failure.
type HandlerFunc func(h Handler, s *Session, data []byte) error

// DispatchTable maps opcodes to handler functions. Its size is fixed when
// the table is created; opcodes at or beyond it are unknown.
type DispatchTable struct {
	entries []HandlerFunc
}

func NewDispatchTable(size int) *DispatchTable {
	return &DispatchTable{entries: make([]HandlerFunc, size)}
}

func (t *DispatchTable) Size() int { return len(t.entries) }

// Entry returns the function for op. ok is false when op is outside the
// table; fn is nil when op is inside but has no handler in this state.
func (t *DispatchTable) Entry(op byte) (fn HandlerFunc, ok bool) {
	if int(op) >= len(t.entries) {
		return nil, false
	}
	return t.entries[op], true
}

// Set installs fn for op. It panics if op does not fit the table.
func (t *DispatchTable) Set(op packet.Opcode, fn HandlerFunc) {
	if int(op) >= len(t.entries) {
		panic(fmt.Sprintf("dispatch table: opcode %s beyond size %d", op, len(t.entries)))
	}
	t.entries[op] = fn
}

// Handle registers a typed handler method for the packet type P. The method
// is usually given as a method expression, e.g.
//
//	net.Handle(t, (*InitialHandler).onAuthRequest)
//
// so one table serves every handler value of that type.
func Handle[H Handler, T any, P interface {
	*T
	packet.Packet
	packet.Decoder
}](t *DispatchTable, fn func(H, *Session, P)) {
	op := P(new(T)).Opcode()
	t.Set(op, func(h Handler, s *Session, data []byte) error {
		p := P(new(T))
		if err := packet.Unmarshal(data, p); err != nil {
			return err
		}
		hh, ok := h.(H)
		if !ok {
			return fmt.Errorf("dispatch: %s registered for %T, session has %T", op, *new(H), h)
		}
		fn(hh, s, p)
		return nil
	})
}
