package handler

import (
	"go.uber.org/zap"

	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/world"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	World             *world.World
	MaxNicknameLength int
	Log               *zap.Logger
}

// NewFactory returns the handler factory a net.Manager uses for freshly
// connected sessions. Every session starts unauthenticated.
func NewFactory(deps *Deps) net.HandlerFactory {
	return func(s *net.Session) net.Handler {
		deps.Log.Debug("session awaiting auth", zap.Uint64("session", s.ID), zap.String("addr", s.Address()))
		return NewInitialHandler(deps)
	}
}
