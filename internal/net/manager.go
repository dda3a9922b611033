package net

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tsom/server/internal/net/packet"
)

// HandlerFactory builds the handler a fresh session starts with.
type HandlerFactory func(s *Session) Handler

// ManagerOptions configure admission and per-session limits.
type ManagerOptions struct {
	ProtocolVersion uint32
	MaxSessions     int // 0 = unlimited
	Session         SessionOptions
}

// Manager owns every session and turns transport events into session calls.
// Accessed only from the game loop goroutine, so it needs no locking.
type Manager struct {
	sessions map[uint64]*Session
	byPeer   map[Peer]*Session
	nextID   uint64
	factory  HandlerFactory
	opts     ManagerOptions
	log      *zap.Logger
}

func NewManager(factory HandlerFactory, opts ManagerOptions, log *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[uint64]*Session),
		byPeer:   make(map[Peer]*Session),
		factory:  factory,
		opts:     opts,
		log:      log,
	}
}

// Connected admits a new peer. The transport passes the protocol version the
// client announced in its connect request. Rejected peers get no session.
func (m *Manager) Connected(p Peer, version uint32) *Session {
	if s, ok := m.byPeer[p]; ok {
		return s
	}
	if version != m.opts.ProtocolVersion {
		m.log.Info("peer rejected: protocol version",
			zap.String("addr", p.Address()),
			zap.Uint32("version", version),
			zap.Uint32("want", m.opts.ProtocolVersion),
		)
		p.Disconnect(packet.ReasonVersionMismatch)
		return nil
	}
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.log.Warn("peer rejected: server full", zap.String("addr", p.Address()))
		p.Disconnect(packet.ReasonServerFull)
		return nil
	}

	m.nextID++
	s := NewSession(m.nextID, p, version, m.opts.Session, m.log)
	m.sessions[s.ID] = s
	m.byPeer[p] = s
	SetHandler(s, m.factory(s))
	s.Log().Info("session connected", zap.String("addr", p.Address()))
	return s
}

// Received hands one packet to its session, enforcing the packet rate.
func (m *Manager) Received(p Peer, channel uint8, data []byte) {
	s, ok := m.byPeer[p]
	if !ok || s.IsClosed() {
		return
	}
	if !s.allowPacket() {
		s.Log().Warn("packet rate exceeded", zap.Uint8("channel", channel))
		s.Disconnect(packet.ReasonRateLimited)
		return
	}
	s.HandlePacket(data)
}

// Disconnected is called when the transport link is gone, whoever closed it.
func (m *Manager) Disconnected(p Peer) {
	s, ok := m.byPeer[p]
	if !ok {
		return
	}
	s.detach(packet.ReasonNone)
	delete(m.byPeer, p)
	delete(m.sessions, s.ID)
	s.Log().Info("session ended", zap.Stringer("reason", s.DisconnectReason()))
}

func (m *Manager) Get(id uint64) *Session { return m.sessions[id] }
func (m *Manager) Len() int               { return len(m.sessions) }

// ForEach visits sessions in id order. fn may disconnect sessions.
func (m *Manager) ForEach(fn func(*Session)) {
	ids := make([]uint64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			fn(s)
		}
	}
}

// Shutdown disconnects every session with reason.
func (m *Manager) Shutdown(reason packet.DisconnectReason) {
	m.ForEach(func(s *Session) { s.Disconnect(reason) })
}
