package net

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tsom/server/internal/net/packet"
)

// SessionState is the protocol phase of a session.
type SessionState int

const (
	StateInitial SessionState = iota // connected, not authenticated
	StatePlayer                      // authenticated, bound to a player
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StatePlayer:
		return "Player"
	case StateDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Handler is the packet router a session currently delegates to. A session
// holds exactly one and replaces it wholesale on a state transition.
type Handler interface {
	State() SessionState
	Dispatch() *DispatchTable
	SendTable() *SendTable

	// OnUnknownOpcode is called for an opcode outside the dispatch table.
	OnUnknownOpcode(s *Session, op byte)
	// OnUnexpectedPacket is called for a known opcode this handler does not
	// accept.
	OnUnexpectedPacket(s *Session, op packet.Opcode)
	// OnDeserializationError is called when a payload fails to decode.
	OnDeserializationError(s *Session, op packet.Opcode, err error)
}

// DisconnectObserver is implemented by handlers that need to release state
// when their session ends while they are installed.
type DisconnectObserver interface {
	OnDisconnected(s *Session, reason packet.DisconnectReason)
}

// Closer is implemented by handlers holding resources. Close runs once the
// handler has been replaced or the session has ended.
type Closer interface {
	Close()
}

// BaseHandler supplies the default hook policy: log everything, and drop a
// peer that keeps sending packets its state does not accept. Concrete
// handlers embed it and override what they need.
type BaseHandler struct{}

func (BaseHandler) OnUnknownOpcode(s *Session, op byte) {
	s.Log().Warn("unknown opcode", zap.Uint8("opcode", op), zap.Stringer("state", s.State()))
}

func (BaseHandler) OnUnexpectedPacket(s *Session, op packet.Opcode) {
	s.Log().Warn("unexpected packet",
		zap.Stringer("opcode", op),
		zap.Stringer("state", s.State()),
	)
	if !s.allowUnexpected() {
		s.Log().Warn("unexpected packet flood, disconnecting")
		s.Disconnect(packet.ReasonProtocolViolation)
	}
}

func (BaseHandler) OnDeserializationError(s *Session, op packet.Opcode, err error) {
	s.Log().Warn("malformed packet", zap.Stringer("opcode", op), zap.Error(err))
}
