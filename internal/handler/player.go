package handler

import (
	"go.uber.org/zap"

	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/world"
)

var playerDispatch = net.NewDispatchTable(int(packet.OpcodeCount))

func init() {
	net.Handle(playerDispatch, (*PlayerHandler).onUpdateInputs)
	net.Handle(playerDispatch, (*PlayerHandler).onTest)
}

// PlayerHandler serves an authenticated session bound to a world player.
type PlayerHandler struct {
	net.BaseHandler
	deps   *Deps
	player *world.Player
}

func NewPlayerHandler(deps *Deps, p *world.Player) *PlayerHandler {
	return &PlayerHandler{deps: deps, player: p}
}

func (*PlayerHandler) State() net.SessionState      { return net.StatePlayer }
func (*PlayerHandler) Dispatch() *net.DispatchTable { return playerDispatch }
func (*PlayerHandler) SendTable() *net.SendTable    { return playerSend }

func (h *PlayerHandler) Player() *world.Player { return h.player }

func (h *PlayerHandler) onUpdateInputs(s *net.Session, p *packet.UpdatePlayerInputs) {
	if !h.player.PushInputs(p.InputIndex, p.Inputs) {
		s.Log().Debug("stale inputs dropped",
			zap.Uint8("index", uint8(p.InputIndex)),
			zap.Uint8("last", uint8(h.player.LastInputIndex())),
		)
	}
}

func (h *PlayerHandler) onTest(s *net.Session, p *packet.Test) {
	echo(s, p)
}

// OnDisconnected unbinds the player from the world.
func (h *PlayerHandler) OnDisconnected(s *net.Session, reason packet.DisconnectReason) {
	h.deps.World.RemovePlayer(h.player)
}
