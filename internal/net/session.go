package net

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tsom/server/internal/net/packet"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrNoSendAttribute = errors.New("packet type not sendable by current handler")
)

// Peer is the transport endpoint behind a session.
type Peer interface {
	Address() string
	Send(data []byte, channel uint8, flags SendFlags) error
	// Disconnect drops the link after queued reliable packets are flushed.
	Disconnect(reason packet.DisconnectReason)
}

// Session represents one connected remote peer. All methods are called from
// the game loop goroutine only.
type Session struct {
	ID              uint64
	Epoch           uuid.UUID // network indices are valid within one epoch only
	ProtocolVersion uint32

	peer    Peer
	handler Handler
	closed  bool
	reason  packet.DisconnectReason

	limiter    *rate.Limiter // all packets; nil = unlimited
	unexpected *rate.Limiter // packets the current state rejects; nil = unlimited

	log *zap.Logger
}

// SessionOptions are the per-session limits a Manager applies.
type SessionOptions struct {
	PacketRate      rate.Limit
	PacketBurst     int
	UnexpectedRate  rate.Limit
	UnexpectedBurst int
}

func NewSession(id uint64, peer Peer, version uint32, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:              id,
		Epoch:           uuid.New(),
		ProtocolVersion: version,
		peer:            peer,
	}
	s.log = log.With(zap.Uint64("session", id), zap.Stringer("epoch", s.Epoch))
	if opts.PacketRate > 0 {
		s.limiter = rate.NewLimiter(opts.PacketRate, max(opts.PacketBurst, 1))
	}
	switch {
	case opts.UnexpectedRate > 0:
		s.unexpected = rate.NewLimiter(opts.UnexpectedRate, max(opts.UnexpectedBurst, 1))
	case opts.UnexpectedBurst > 0:
		// Zero rate still tolerates the burst, then refuses.
		s.unexpected = rate.NewLimiter(0, opts.UnexpectedBurst)
	}
	return s
}

func (s *Session) Address() string  { return s.peer.Address() }
func (s *Session) Log() *zap.Logger { return s.log }
func (s *Session) Handler() Handler { return s.handler }
func (s *Session) IsClosed() bool   { return s.closed }

// DisconnectReason is the reason passed to Disconnect, or ReasonNone if the
// peer left on its own.
func (s *Session) DisconnectReason() packet.DisconnectReason { return s.reason }

func (s *Session) State() SessionState {
	if s.closed || s.handler == nil {
		return StateDisconnected
	}
	return s.handler.State()
}

// SetHandler installs h as the session's handler and returns it. The old
// handler stays alive until the swap is committed and is closed afterwards,
// so a handler may replace itself from inside one of its own callbacks.
func SetHandler[H Handler](s *Session, h H) H {
	if s.closed {
		s.log.Debug("handler swap on closed session ignored", zap.Stringer("to", h.State()))
		if c, ok := any(h).(Closer); ok {
			c.Close()
		}
		return h
	}
	old := s.handler
	s.handler = h
	if old != nil {
		s.log.Debug("handler swap",
			zap.Stringer("from", old.State()),
			zap.Stringer("to", h.State()),
		)
		if c, ok := old.(Closer); ok {
			c.Close()
		}
	}
	return h
}

// allowPacket reports whether the packet rate limit still has room.
func (s *Session) allowPacket() bool {
	return s.limiter == nil || s.limiter.Allow()
}

func (s *Session) allowUnexpected() bool {
	return s.unexpected == nil || s.unexpected.Allow()
}

// HandlePacket routes one raw packet to the current handler. Decode errors
// and handler panics are contained here and never reach the caller.
func (s *Session) HandlePacket(data []byte) {
	h := s.handler
	if h == nil {
		return // detached: disconnected sessions drop late packets
	}
	if len(data) == 0 {
		s.log.Debug("empty packet dropped")
		return
	}

	op := data[0]
	fn, ok := h.Dispatch().Entry(op)
	if !ok {
		h.OnUnknownOpcode(s, op)
		return
	}
	if fn == nil {
		h.OnUnexpectedPacket(s, packet.Opcode(op))
		return
	}
	if err := s.safeCall(fn, h, data); err != nil {
		h.OnDeserializationError(s, packet.Opcode(op), err)
	}
}

// safeCall runs a handler with panic recovery so one bad packet cannot take
// down the game loop. A panic is logged, not reported as a decode error.
func (s *Session) safeCall(fn HandlerFunc, h Handler, data []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("packet handler panic recovered",
				zap.Stringer("opcode", packet.Opcode(data[0])),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			err = nil
		}
	}()
	return fn(h, s, data)
}

// Send serializes p and queues it on the channel and delivery mode the
// current handler's send table assigns to its type.
func (s *Session) Send(p packet.Packet) error {
	if s.closed || s.handler == nil {
		return ErrSessionClosed
	}
	attr, ok := s.handler.SendTable().Lookup(p.Opcode())
	if !ok {
		return fmt.Errorf("%w: %s in state %s", ErrNoSendAttribute, p.Opcode(), s.handler.State())
	}
	data, err := packet.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.peer.Send(data, attr.Channel, attr.Flags); err != nil {
		return fmt.Errorf("send %s: %w", p.Opcode(), err)
	}
	return nil
}

// Disconnect tells the peer why, when the current handler's send table has
// a Disconnect entry, asks the transport to drop the link, and detaches the
// handler. Packets already being handled complete; later ones are dropped.
// Client handlers carry no Disconnect entry, so they leave without a notice.
func (s *Session) Disconnect(reason packet.DisconnectReason) {
	if s.closed {
		return
	}
	if err := s.Send(&packet.Disconnect{Reason: reason}); err != nil {
		s.log.Debug("disconnect notice not sent", zap.Error(err))
	}
	s.log.Info("disconnecting", zap.Stringer("reason", reason))
	s.peer.Disconnect(reason)
	s.detach(reason)
}

// detach ends the session on this side. Safe to call more than once.
func (s *Session) detach(reason packet.DisconnectReason) {
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	h := s.handler
	s.handler = nil
	if h == nil {
		return
	}
	if o, ok := h.(DisconnectObserver); ok {
		o.OnDisconnected(s, reason)
	}
	if c, ok := h.(Closer); ok {
		c.Close()
	}
}
