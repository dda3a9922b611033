package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/tsom/server/internal/core/system"
	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/transport"
)

// EventSource is the transport the input system drains each tick.
type EventSource interface {
	Poll(limit int, fn func(transport.Event)) int
}

// InputSystem drains transport events and hands them to the session
// manager, which dispatches packets through each session's handler.
// Phase 0 (Input).
type InputSystem struct {
	source     EventSource
	manager    *net.Manager
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(source EventSource, manager *net.Manager, maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{
		source:     source,
		manager:    manager,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	n := s.source.Poll(s.maxPerTick, s.handle)
	if s.maxPerTick > 0 && n >= s.maxPerTick {
		s.log.Debug("event budget exhausted, rest deferred", zap.Int("events", n))
	}
}

func (s *InputSystem) handle(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		s.manager.Connected(ev.Peer, ev.ConnectData)
	case transport.EventReceive:
		s.manager.Received(ev.Peer, ev.Channel, ev.Data)
	case transport.EventDisconnect:
		s.manager.Disconnected(ev.Peer)
	}
}
