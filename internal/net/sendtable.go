package net

import (
	"fmt"

	"github.com/tsom/server/internal/net/packet"
)

// SendFlags selects the delivery guarantees of a transport channel send.
type SendFlags uint8

const (
	// Reliable packets are retransmitted until acknowledged and arrive in
	// order within their channel.
	Reliable SendFlags = 1 << iota
	// Unsequenced packets bypass ordering. Only meaningful without Reliable.
	Unsequenced

	// Unreliable is the zero set: sequenced, may be dropped.
	Unreliable SendFlags = 0
)

func (f SendFlags) String() string {
	switch {
	case f&Reliable != 0:
		return "reliable"
	case f&Unsequenced != 0:
		return "unsequenced"
	default:
		return "unreliable"
	}
}

// SendAttribute is the channel and delivery policy of one packet type.
type SendAttribute struct {
	Channel uint8
	Flags   SendFlags
}

// SendTable is the fixed outbound policy of a handler type. Tables are
// built once at package init and only read afterwards.
type SendTable struct {
	attrs [packet.OpcodeCount]SendAttribute
	set   [packet.OpcodeCount]bool
}

func NewSendTable(attrs map[packet.Opcode]SendAttribute) *SendTable {
	t := &SendTable{}
	for op, a := range attrs {
		if op >= packet.OpcodeCount {
			panic(fmt.Sprintf("send table: opcode %d out of range", op))
		}
		t.attrs[op] = a
		t.set[op] = true
	}
	return t
}

// Lookup returns the policy for op, or false when the handler may not send
// that packet type.
func (t *SendTable) Lookup(op packet.Opcode) (SendAttribute, bool) {
	if t == nil || op >= packet.OpcodeCount || !t.set[op] {
		return SendAttribute{}, false
	}
	return t.attrs[op], true
}
