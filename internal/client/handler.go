package client

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
)

var ErrNotAuthenticated = errors.New("client: not authenticated")

var dispatch = net.NewDispatchTable(int(packet.OpcodeCount))

var sendTable = net.NewSendTable(map[packet.Opcode]net.SendAttribute{
	packet.OpAuthRequest:        {Channel: 0, Flags: net.Reliable},
	packet.OpTest:               {Channel: 0, Flags: net.Reliable},
	packet.OpUpdatePlayerInputs: {Channel: 1, Flags: net.Unreliable},
})

func init() {
	net.Handle(dispatch, (*Handler).onAuthResponse)
	net.Handle(dispatch, (*Handler).onTest)
	net.Handle(dispatch, (*Handler).onNetworkStrings)
	net.Handle(dispatch, (*Handler).onChunkCreate)
	net.Handle(dispatch, (*Handler).onChunkDestroy)
	net.Handle(dispatch, (*Handler).onEntitiesCreation)
	net.Handle(dispatch, (*Handler).onEntitiesDelete)
	net.Handle(dispatch, (*Handler).onEntitiesStateUpdate)
	net.Handle(dispatch, (*Handler).onPlayerJoin)
	net.Handle(dispatch, (*Handler).onPlayerLeave)
	net.Handle(dispatch, (*Handler).onDisconnect)
}

// Handler is the client side of a session. It feeds every world packet into
// its Mirror and stamps outgoing inputs.
type Handler struct {
	net.BaseHandler
	mirror *Mirror

	authenticated bool
	authFailed    bool
	reason        packet.DisconnectReason
	nextInput     packet.InputIndex

	// OnTest, when set, receives every echoed Test message.
	OnTest func(msg string)
}

func NewHandler(m *Mirror) *Handler {
	return &Handler{mirror: m}
}

func (h *Handler) State() net.SessionState {
	if h.authenticated {
		return net.StatePlayer
	}
	return net.StateInitial
}

func (*Handler) Dispatch() *net.DispatchTable { return dispatch }
func (*Handler) SendTable() *net.SendTable    { return sendTable }

func (h *Handler) Mirror() *Mirror     { return h.mirror }
func (h *Handler) Authenticated() bool { return h.authenticated }
func (h *Handler) AuthFailed() bool    { return h.authFailed }

// Reason is what the server gave when it dropped us, or ReasonNone.
func (h *Handler) Reason() packet.DisconnectReason { return h.reason }

// Authenticate binds the mirror to s and sends the nickname the player
// wants to appear under.
func (h *Handler) Authenticate(s *net.Session, nickname string) error {
	h.mirror.Bind(s.Epoch)
	return s.Send(&packet.AuthRequest{Nickname: nickname})
}

// current reports whether s is the session the mirror belongs to. An unbound
// mirror is bound to s. World packets from an older epoch are dropped.
func (h *Handler) current(s *net.Session) bool {
	switch h.mirror.Epoch() {
	case s.Epoch:
		return true
	case uuid.Nil:
		h.mirror.Bind(s.Epoch)
		return true
	}
	s.Log().Debug("world packet from an ended epoch dropped", zap.Stringer("mirror", h.mirror.Epoch()))
	return false
}

// SendInputs stamps in with the next input index and sends it. The index is
// returned so callers can match it against AckedInput.
func (h *Handler) SendInputs(s *net.Session, in packet.PlayerInputs) (packet.InputIndex, error) {
	if !h.authenticated {
		return 0, ErrNotAuthenticated
	}
	h.nextInput++
	idx := h.nextInput
	return idx, s.Send(&packet.UpdatePlayerInputs{InputIndex: idx, Inputs: in})
}

func (h *Handler) onAuthResponse(s *net.Session, p *packet.AuthResponse) {
	if !p.Succeeded {
		h.authFailed = true
		s.Log().Warn("authentication refused")
		return
	}
	h.authenticated = true
	s.Log().Info("authenticated")
}

func (h *Handler) onTest(s *net.Session, p *packet.Test) {
	if h.OnTest != nil {
		h.OnTest(p.Message)
	}
}

func (h *Handler) onNetworkStrings(s *net.Session, p *packet.NetworkStrings) {
	if !h.current(s) {
		return
	}
	h.report(s, p, h.mirror.applyStrings(p))
}

func (h *Handler) onChunkCreate(s *net.Session, p *packet.ChunkCreate) {
	if !h.current(s) {
		return
	}
	h.report(s, p, h.mirror.createChunk(p))
}

func (h *Handler) onChunkDestroy(s *net.Session, p *packet.ChunkDestroy) {
	if !h.current(s) {
		return
	}
	h.report(s, p, h.mirror.destroyChunk(p))
}

func (h *Handler) onEntitiesCreation(s *net.Session, p *packet.EntitiesCreation) {
	if !h.current(s) {
		return
	}
	h.report(s, p, h.mirror.createEntities(p))
}

func (h *Handler) onEntitiesDelete(s *net.Session, p *packet.EntitiesDelete) {
	if !h.current(s) {
		return
	}
	h.report(s, p, h.mirror.deleteEntities(p))
}

func (h *Handler) onEntitiesStateUpdate(s *net.Session, p *packet.EntitiesStateUpdate) {
	if !h.current(s) {
		return
	}
	h.mirror.updateStates(p)
}

func (h *Handler) onPlayerJoin(s *net.Session, p *packet.PlayerJoin) {
	if !h.current(s) {
		return
	}
	h.mirror.playerJoined(p.Name)
}

func (h *Handler) onPlayerLeave(s *net.Session, p *packet.PlayerLeave) {
	if !h.current(s) {
		return
	}
	h.mirror.playerLeft(p.Name)
}

func (h *Handler) onDisconnect(s *net.Session, p *packet.Disconnect) {
	h.reason = p.Reason
	s.Log().Info("server disconnected us", zap.Stringer("reason", p.Reason))
}

// report logs a packet the mirror could not fully apply. The server is
// authoritative, so the mirror keeps going rather than dropping the link.
func (h *Handler) report(s *net.Session, p packet.Packet, err error) {
	if err != nil {
		s.Log().Warn("mirror out of sync", zap.Stringer("opcode", p.Opcode()), zap.Error(err))
	}
}
