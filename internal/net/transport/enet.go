// Package transport adapts an ENet host to the session layer: channels,
// reliable and unsequenced delivery, and connect/disconnect data.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/codecat/go-enet"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init initializes the ENet library once per process.
func Init() error {
	initOnce.Do(func() { initErr = enet.Initialize() })
	return initErr
}

var ErrClosed = errors.New("transport: host closed")

// EventType mirrors the ENet event kinds the session layer cares about.
type EventType int

const (
	EventConnect EventType = iota
	EventReceive
	EventDisconnect
)

// Event is one drained host event. Data is owned by the receiver. Peer is
// a *Peer for events produced by a Host.
type Event struct {
	Type    EventType
	Peer    net.Peer
	Channel uint8
	Data    []byte
	// ConnectData is the 32-bit value attached to connect and disconnect
	// requests: the protocol version on connect, the reason on disconnect.
	ConnectData uint32
}

// Host wraps an ENet host. It is driven from the game loop goroutine only.
type Host struct {
	host    enet.Host
	peers   map[enet.Peer]*Peer
	pending []Event
	closed  bool
	log     *zap.Logger
}

// Listen creates a server host. An empty or wildcard bind address listens on
// every interface.
func Listen(bind string, port uint16, maxPeers, channels int, log *zap.Logger) (*Host, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("enet init: %w", err)
	}
	var addr enet.Address
	if bind == "" || bind == "0.0.0.0" {
		addr = enet.NewListenAddress(port)
	} else {
		addr = enet.NewAddress(bind, port)
	}
	h, err := enet.NewHost(addr, uint64(maxPeers), uint64(channels), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("enet host %s:%d: %w", bind, port, err)
	}
	return newHost(h, log), nil
}

// NewClient creates an outgoing-only host with a single peer slot.
func NewClient(channels int, log *zap.Logger) (*Host, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("enet init: %w", err)
	}
	h, err := enet.NewHost(nil, 1, uint64(channels), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("enet client host: %w", err)
	}
	return newHost(h, log), nil
}

func newHost(h enet.Host, log *zap.Logger) *Host {
	return &Host{
		host:  h,
		peers: make(map[enet.Peer]*Peer),
		log:   log,
	}
}

// Dial starts connecting to a server, announcing version as connect data.
// The connection is established once Poll reports EventConnect.
func (h *Host) Dial(addr string, port uint16, channels int, version uint32) (*Peer, error) {
	if h.closed {
		return nil, ErrClosed
	}
	p, err := h.host.Connect(enet.NewAddress(addr, port), channels, version)
	if err != nil {
		return nil, fmt.Errorf("enet connect %s:%d: %w", addr, port, err)
	}
	return h.wrap(p), nil
}

func (h *Host) wrap(p enet.Peer) *Peer {
	if w, ok := h.peers[p]; ok {
		return w
	}
	w := &Peer{peer: p, addr: p.GetAddress().String()}
	h.peers[p] = w
	return w
}

// Poll drains up to limit events without blocking and passes each to fn.
// limit <= 0 means no bound. It returns the number of events handled.
func (h *Host) Poll(limit int, fn func(Event)) int {
	if h.closed {
		return 0
	}
	n := 0
	for len(h.pending) > 0 && (limit <= 0 || n < limit) {
		ev := h.pending[0]
		h.pending = h.pending[1:]
		h.deliver(ev, fn)
		n++
	}
	for limit <= 0 || n < limit {
		ev, ok := h.service()
		if !ok {
			break
		}
		h.deliver(ev, fn)
		n++
	}
	return n
}

// Flush pushes queued outgoing packets to the socket. Any event the service
// call produces is kept for the next Poll.
func (h *Host) Flush() {
	if h.closed {
		return
	}
	if ev, ok := h.service(); ok {
		h.pending = append(h.pending, ev)
	}
}

func (h *Host) service() (Event, bool) {
	raw := h.host.Service(0)
	switch raw.GetType() {
	case enet.EventConnect:
		return Event{Type: EventConnect, Peer: h.wrap(raw.GetPeer()), ConnectData: raw.GetData()}, true
	case enet.EventDisconnect:
		return Event{Type: EventDisconnect, Peer: h.wrap(raw.GetPeer()), ConnectData: raw.GetData()}, true
	case enet.EventReceive:
		pkt := raw.GetPacket()
		data := append([]byte(nil), pkt.GetData()...)
		pkt.Destroy()
		return Event{
			Type:    EventReceive,
			Peer:    h.wrap(raw.GetPeer()),
			Channel: raw.GetChannelID(),
			Data:    data,
		}, true
	}
	return Event{}, false
}

func (h *Host) deliver(ev Event, fn func(Event)) {
	fn(ev)
	if p, ok := ev.Peer.(*Peer); ok && ev.Type == EventDisconnect {
		delete(h.peers, p.peer)
	}
}

// Close drops every peer immediately and destroys the host.
func (h *Host) Close() {
	if h.closed {
		return
	}
	h.closed = true
	for p := range h.peers {
		p.DisconnectNow(uint32(packet.ReasonServerShutdown))
	}
	h.host.Destroy()
	h.log.Info("transport closed")
}

// Peer is one ENet peer. It implements net.Peer.
type Peer struct {
	peer enet.Peer
	addr string
}

func (p *Peer) Address() string { return p.addr }

func (p *Peer) Send(data []byte, channel uint8, flags net.SendFlags) error {
	return p.peer.SendBytes(data, channel, packetFlags(flags))
}

// Disconnect queues a graceful disconnect behind already queued packets, so
// a reliable Disconnect notice sent just before still arrives.
func (p *Peer) Disconnect(reason packet.DisconnectReason) {
	p.peer.DisconnectLater(uint32(reason))
}

func packetFlags(f net.SendFlags) enet.PacketFlags {
	var out enet.PacketFlags
	if f&net.Reliable != 0 {
		out |= enet.PacketFlagReliable
	} else if f&net.Unsequenced != 0 {
		out |= enet.PacketFlagUnsequenced
	}
	return out
}
