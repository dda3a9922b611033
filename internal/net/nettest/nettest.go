// Package nettest provides an in-memory transport peer for session and
// replication tests.
package nettest

import (
	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
)

// Sent is one packet handed to the transport.
type Sent struct {
	Data    []byte
	Channel uint8
	Flags   net.SendFlags
}

func (s Sent) Opcode() packet.Opcode { return packet.Opcode(s.Data[0]) }

// Peer records everything sent to it. It implements net.Peer.
type Peer struct {
	Addr    string
	Sent    []Sent
	SendErr error // returned by Send when set

	Disconnected bool
	Reason       packet.DisconnectReason

	delivered int
}

func NewPeer(addr string) *Peer {
	return &Peer{Addr: addr}
}

func (p *Peer) Address() string { return p.Addr }

func (p *Peer) Send(data []byte, channel uint8, flags net.SendFlags) error {
	if p.SendErr != nil {
		return p.SendErr
	}
	p.Sent = append(p.Sent, Sent{
		Data:    append([]byte(nil), data...),
		Channel: channel,
		Flags:   flags,
	})
	return nil
}

func (p *Peer) Disconnect(reason packet.DisconnectReason) {
	p.Disconnected = true
	p.Reason = reason
}

// Opcodes lists the opcodes of every sent packet in order.
func (p *Peer) Opcodes() []packet.Opcode {
	ops := make([]packet.Opcode, len(p.Sent))
	for i, s := range p.Sent {
		ops[i] = s.Opcode()
	}
	return ops
}

// Reset forgets recorded packets.
func (p *Peer) Reset() {
	p.Sent = nil
	p.delivered = 0
}

// Deliver passes every packet sent since the previous Deliver to fn, in
// send order, and returns how many it passed.
func (p *Peer) Deliver(fn func(Sent)) int {
	n := 0
	for p.delivered < len(p.Sent) {
		s := p.Sent[p.delivered]
		p.delivered++
		fn(s)
		n++
	}
	return n
}

// All decodes every sent packet of type P. Packets that fail to decode are
// skipped.
func All[T any, P interface {
	*T
	packet.Packet
	packet.Decoder
}](p *Peer) []P {
	var out []P
	want := P(new(T)).Opcode()
	for _, s := range p.Sent {
		if s.Opcode() != want {
			continue
		}
		pkt := P(new(T))
		if err := packet.Unmarshal(s.Data, pkt); err == nil {
			out = append(out, pkt)
		}
	}
	return out
}

// Last decodes the most recent sent packet of type P together with how it
// was sent.
func Last[T any, P interface {
	*T
	packet.Packet
	packet.Decoder
}](p *Peer) (P, Sent, bool) {
	want := P(new(T)).Opcode()
	for i := len(p.Sent) - 1; i >= 0; i-- {
		s := p.Sent[i]
		if s.Opcode() != want {
			continue
		}
		pkt := P(new(T))
		if err := packet.Unmarshal(s.Data, pkt); err != nil {
			return nil, s, false
		}
		return pkt, s, true
	}
	return nil, Sent{}, false
}
