package world

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/net/packet"
)

// Sender is the outbound side of a player's session.
type Sender interface {
	Send(p packet.Packet) error
}

// Player is the server-side state of one authenticated session.
type Player struct {
	Name      string
	SessionID uint64

	conn   Sender
	entity ecs.EntityID

	inputs    packet.PlayerInputs
	lastInput packet.InputIndex
	hasInput  bool

	synced bool // received the full world snapshot
	log    *zap.Logger
}

func (p *Player) Entity() ecs.EntityID { return p.entity }

// LastInputIndex is the index of the newest input applied, echoed back in
// state updates so the client can reconcile.
func (p *Player) LastInputIndex() packet.InputIndex { return p.lastInput }

func (p *Player) Inputs() packet.PlayerInputs { return p.inputs }

// PushInputs records inputs for the next tick. Inputs whose index is not
// more recent than the last accepted one are stale or duplicated and are
// dropped. It reports whether the inputs were taken.
func (p *Player) PushInputs(idx packet.InputIndex, in packet.PlayerInputs) bool {
	if p.hasInput && !idx.IsMoreRecent(p.lastInput) {
		return false
	}
	p.inputs = in
	p.lastInput = idx
	p.hasInput = true
	return true
}

func (p *Player) send(pkt packet.Packet) {
	err := p.conn.Send(pkt)
	switch {
	case err == nil:
	case errors.Is(err, packet.ErrStringTooLong), errors.Is(err, packet.ErrTooManyItems):
		p.log.Warn("packet does not fit the wire format", zap.Stringer("opcode", pkt.Opcode()), zap.Error(err))
	default:
		p.log.Debug("send failed", zap.Stringer("opcode", pkt.Opcode()), zap.Error(err))
	}
}

// movement holds the tuning read from the player's class properties.
type movement struct {
	speed  float32
	sprint float32
	jump   float32
}

var defaultMovement = movement{speed: 6, sprint: 2, jump: 5}

func readMovement(inst *entity.ClassInstance) movement {
	m := defaultMovement
	if v, err := entity.Get[entity.Float](inst, "speed"); err == nil {
		m.speed = float32(v)
	}
	if v, err := entity.Get[entity.Float](inst, "sprint_multiplier"); err == nil {
		m.sprint = float32(v)
	}
	if v, err := entity.Get[entity.Float](inst, "jump_speed"); err == nil {
		m.jump = float32(v)
	}
	return m
}

// velocity turns held inputs into a world-space velocity. Forward is -Z in
// the orientation's frame.
func (m movement) velocity(in packet.PlayerInputs, rot mgl32.Quat) mgl32.Vec3 {
	var dir mgl32.Vec3
	if in.MoveForward {
		dir = dir.Add(mgl32.Vec3{0, 0, -1})
	}
	if in.MoveBackward {
		dir = dir.Add(mgl32.Vec3{0, 0, 1})
	}
	if in.MoveLeft {
		dir = dir.Add(mgl32.Vec3{-1, 0, 0})
	}
	if in.MoveRight {
		dir = dir.Add(mgl32.Vec3{1, 0, 0})
	}
	speed := m.speed
	if in.Sprint {
		speed *= m.sprint
	}
	var vel mgl32.Vec3
	if dir.Len() > 0 {
		vel = rot.Rotate(dir.Normalize()).Mul(speed)
	}
	if in.Jump {
		vel[1] += m.jump
	}
	if in.Crouch {
		vel[1] -= m.jump
	}
	return vel
}

// orientation returns q normalized, or identity for a degenerate quaternion.
func orientation(q mgl32.Quat) mgl32.Quat {
	if q.Len() < 1e-6 {
		return mgl32.QuatIdent()
	}
	return q.Normalize()
}
