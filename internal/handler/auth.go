package handler

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/secure/precis"

	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
)

var errNicknameTooLong = errors.New("nickname too long")

var initialDispatch = net.NewDispatchTable(int(packet.OpcodeCount))

func init() {
	net.Handle(initialDispatch, (*InitialHandler).onAuthRequest)
	net.Handle(initialDispatch, (*InitialHandler).onTest)
}

// InitialHandler serves a session until it authenticates.
type InitialHandler struct {
	net.BaseHandler
	deps *Deps
}

func NewInitialHandler(deps *Deps) *InitialHandler {
	return &InitialHandler{deps: deps}
}

func (*InitialHandler) State() net.SessionState      { return net.StateInitial }
func (*InitialHandler) Dispatch() *net.DispatchTable { return initialDispatch }
func (*InitialHandler) SendTable() *net.SendTable    { return initialSend }

// OnDeserializationError drops the peer: before authentication there is no
// state worth keeping a misbehaving client around for.
func (h *InitialHandler) OnDeserializationError(s *net.Session, op packet.Opcode, err error) {
	h.BaseHandler.OnDeserializationError(s, op, err)
	s.Disconnect(packet.ReasonProtocolViolation)
}

func (h *InitialHandler) onAuthRequest(s *net.Session, p *packet.AuthRequest) {
	name, err := normalizeNickname(p.Nickname, h.deps.MaxNicknameLength)
	if err != nil {
		h.reject(s, p.Nickname, err)
		return
	}
	player, err := h.deps.World.CreatePlayer(s, s.ID, name)
	if err != nil {
		h.reject(s, name, err)
		return
	}
	if err := s.Send(&packet.AuthResponse{Succeeded: true}); err != nil {
		s.Log().Warn("auth response", zap.Error(err))
	}
	s.Log().Info("authenticated", zap.String("player", name))
	net.SetHandler(s, NewPlayerHandler(h.deps, player))
}

func (h *InitialHandler) reject(s *net.Session, nickname string, err error) {
	s.Log().Info("auth rejected", zap.String("nickname", nickname), zap.Error(err))
	if err := s.Send(&packet.AuthResponse{Succeeded: false}); err != nil {
		s.Log().Debug("auth response", zap.Error(err))
	}
	s.Disconnect(packet.ReasonAuthRejected)
}

func (h *InitialHandler) onTest(s *net.Session, p *packet.Test) {
	echo(s, p)
}

func echo(s *net.Session, p *packet.Test) {
	if err := s.Send(&packet.Test{Message: p.Message}); err != nil {
		s.Log().Debug("test echo", zap.Error(err))
	}
}

// normalizeNickname applies the PRECIS nickname profile and the configured
// length limit, counted in runes after normalization.
func normalizeNickname(raw string, maxLen int) (string, error) {
	name, err := precis.Nickname.String(raw)
	if err != nil {
		return "", fmt.Errorf("nickname %q: %w", raw, err)
	}
	if maxLen > 0 && utf8.RuneCountInString(name) > maxLen {
		return "", fmt.Errorf("%w: %d > %d", errNicknameTooLong, utf8.RuneCountInString(name), maxLen)
	}
	return name, nil
}
