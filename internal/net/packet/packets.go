package packet

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tsom/server/internal/entity"
)

// AuthRequest is the first packet a client sends.
type AuthRequest struct {
	Nickname string
}

func (*AuthRequest) Opcode() Opcode     { return OpAuthRequest }
func (p *AuthRequest) Encode(w *Writer) { w.WriteS(p.Nickname) }
func (p *AuthRequest) Decode(r *Reader) { p.Nickname = r.ReadS() }

type AuthResponse struct {
	Succeeded bool
}

func (*AuthResponse) Opcode() Opcode     { return OpAuthResponse }
func (p *AuthResponse) Encode(w *Writer) { w.WriteBool(p.Succeeded) }
func (p *AuthResponse) Decode(r *Reader) { p.Succeeded = r.ReadBool() }

// Test is a diagnostic echo.
type Test struct {
	Message string
}

func (*Test) Opcode() Opcode     { return OpTest }
func (p *Test) Encode(w *Writer) { w.WriteS(p.Message) }
func (p *Test) Decode(r *Reader) { p.Message = r.ReadS() }

// NetworkStrings carries every interned string from StartID on.
type NetworkStrings struct {
	StartID uint32
	Strings []string
}

func (*NetworkStrings) Opcode() Opcode { return OpNetworkStrings }

func (p *NetworkStrings) Encode(w *Writer) {
	w.WriteD(p.StartID)
	w.WriteCount(len(p.Strings))
	for _, s := range p.Strings {
		w.WriteS(s)
	}
}

func (p *NetworkStrings) Decode(r *Reader) {
	p.StartID = r.ReadD()
	n := r.ReadCount(2)
	p.Strings = make([]string, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Strings = append(p.Strings, r.ReadS())
	}
}

type ChunkCreate struct {
	ChunkID  uint32
	Position [3]int32
	Size     [3]uint32
}

func (*ChunkCreate) Opcode() Opcode { return OpChunkCreate }

func (p *ChunkCreate) Encode(w *Writer) {
	w.WriteD(p.ChunkID)
	for _, c := range p.Position {
		w.WriteI(c)
	}
	for _, c := range p.Size {
		w.WriteD(c)
	}
}

func (p *ChunkCreate) Decode(r *Reader) {
	p.ChunkID = r.ReadD()
	for i := range p.Position {
		p.Position[i] = r.ReadI()
	}
	for i := range p.Size {
		p.Size[i] = r.ReadD()
	}
}

type ChunkDestroy struct {
	ChunkID uint32
}

func (*ChunkDestroy) Opcode() Opcode     { return OpChunkDestroy }
func (p *ChunkDestroy) Encode(w *Writer) { w.WriteD(p.ChunkID) }
func (p *ChunkDestroy) Decode(r *Reader) { p.ChunkID = r.ReadD() }

// EntityProperty is one networked property slot of a created entity.
type EntityProperty struct {
	Index uint16
	Value entity.Value
}

type EntityCreation struct {
	EntityID   uint32
	ClassID    uint32 // interned class name
	Position   mgl32.Vec3
	Rotation   mgl32.Quat
	Properties []EntityProperty
}

type EntitiesCreation struct {
	TickIndex uint16
	Entities  []EntityCreation
}

func (*EntitiesCreation) Opcode() Opcode { return OpEntitiesCreation }

func (p *EntitiesCreation) Encode(w *Writer) {
	w.WriteH(p.TickIndex)
	w.WriteCount(len(p.Entities))
	for _, e := range p.Entities {
		w.WriteD(e.EntityID)
		w.WriteD(e.ClassID)
		w.WriteVec3(e.Position)
		w.WriteQuat(e.Rotation)
		w.WriteCount(len(e.Properties))
		for _, prop := range e.Properties {
			w.WriteH(prop.Index)
			w.WriteValue(prop.Value)
		}
	}
}

// entityCreationMinSize is id + class + position + rotation + property count.
const entityCreationMinSize = 4 + 4 + 12 + 16 + 2

func (p *EntitiesCreation) Decode(r *Reader) {
	p.TickIndex = r.ReadH()
	n := r.ReadCount(entityCreationMinSize)
	p.Entities = make([]EntityCreation, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		e := EntityCreation{
			EntityID: r.ReadD(),
			ClassID:  r.ReadD(),
			Position: r.ReadVec3(),
			Rotation: r.ReadQuat(),
		}
		pn := r.ReadCount(3)
		e.Properties = make([]EntityProperty, 0, pn)
		for j := 0; j < pn && r.Err() == nil; j++ {
			e.Properties = append(e.Properties, EntityProperty{Index: r.ReadH(), Value: r.ReadValue()})
		}
		p.Entities = append(p.Entities, e)
	}
}

type EntitiesDelete struct {
	Entities []uint32
}

func (*EntitiesDelete) Opcode() Opcode { return OpEntitiesDelete }

func (p *EntitiesDelete) Encode(w *Writer) {
	w.WriteCount(len(p.Entities))
	for _, id := range p.Entities {
		w.WriteD(id)
	}
}

func (p *EntitiesDelete) Decode(r *Reader) {
	n := r.ReadCount(4)
	p.Entities = make([]uint32, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Entities = append(p.Entities, r.ReadD())
	}
}

type EntityState struct {
	EntityID uint32
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// EntitiesStateUpdate is the per-tick transform snapshot. LastInputIndex
// echoes the most recent input the server applied for the receiving player.
type EntitiesStateUpdate struct {
	TickIndex      uint16
	LastInputIndex InputIndex
	Entities       []EntityState
}

func (*EntitiesStateUpdate) Opcode() Opcode { return OpEntitiesStateUpdate }

func (p *EntitiesStateUpdate) Encode(w *Writer) {
	w.WriteH(p.TickIndex)
	w.WriteC(byte(p.LastInputIndex))
	w.WriteCount(len(p.Entities))
	for _, e := range p.Entities {
		w.WriteD(e.EntityID)
		w.WriteVec3(e.Position)
		w.WriteQuat(e.Rotation)
	}
}

func (p *EntitiesStateUpdate) Decode(r *Reader) {
	p.TickIndex = r.ReadH()
	p.LastInputIndex = InputIndex(r.ReadC())
	n := r.ReadCount(4 + 12 + 16)
	p.Entities = make([]EntityState, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Entities = append(p.Entities, EntityState{
			EntityID: r.ReadD(),
			Position: r.ReadVec3(),
			Rotation: r.ReadQuat(),
		})
	}
}

type PlayerJoin struct {
	Name string
}

func (*PlayerJoin) Opcode() Opcode     { return OpPlayerJoin }
func (p *PlayerJoin) Encode(w *Writer) { w.WriteS(p.Name) }
func (p *PlayerJoin) Decode(r *Reader) { p.Name = r.ReadS() }

type PlayerLeave struct {
	Name string
}

func (*PlayerLeave) Opcode() Opcode     { return OpPlayerLeave }
func (p *PlayerLeave) Encode(w *Writer) { w.WriteS(p.Name) }
func (p *PlayerLeave) Decode(r *Reader) { p.Name = r.ReadS() }

// PlayerInputs is the movement state a client holds during one tick.
type PlayerInputs struct {
	MoveForward  bool
	MoveBackward bool
	MoveLeft     bool
	MoveRight    bool
	Jump         bool
	Crouch       bool
	Sprint       bool
	Orientation  mgl32.Quat
}

const (
	inputForward = 1 << iota
	inputBackward
	inputLeft
	inputRight
	inputJump
	inputCrouch
	inputSprint

	inputMask = 1<<iota - 1
)

func (in PlayerInputs) bits() byte {
	var b byte
	set := func(on bool, bit byte) {
		if on {
			b |= bit
		}
	}
	set(in.MoveForward, inputForward)
	set(in.MoveBackward, inputBackward)
	set(in.MoveLeft, inputLeft)
	set(in.MoveRight, inputRight)
	set(in.Jump, inputJump)
	set(in.Crouch, inputCrouch)
	set(in.Sprint, inputSprint)
	return b
}

type UpdatePlayerInputs struct {
	InputIndex InputIndex
	Inputs     PlayerInputs
}

func (*UpdatePlayerInputs) Opcode() Opcode { return OpUpdatePlayerInputs }

func (p *UpdatePlayerInputs) Encode(w *Writer) {
	w.WriteC(byte(p.InputIndex))
	w.WriteC(p.Inputs.bits())
	w.WriteQuat(p.Inputs.Orientation)
}

func (p *UpdatePlayerInputs) Decode(r *Reader) {
	p.InputIndex = InputIndex(r.ReadC())
	b := r.ReadC()
	if b&^byte(inputMask) != 0 {
		r.Fail(fmt.Errorf("%w: input bits %#02x", ErrInvalidValue, b))
	}
	p.Inputs = PlayerInputs{
		MoveForward:  b&inputForward != 0,
		MoveBackward: b&inputBackward != 0,
		MoveLeft:     b&inputLeft != 0,
		MoveRight:    b&inputRight != 0,
		Jump:         b&inputJump != 0,
		Crouch:       b&inputCrouch != 0,
		Sprint:       b&inputSprint != 0,
		Orientation:  r.ReadQuat(),
	}
}

// Disconnect is sent on the reliable path right before the server drops a
// peer.
type Disconnect struct {
	Reason DisconnectReason
}

func (*Disconnect) Opcode() Opcode     { return OpDisconnect }
func (p *Disconnect) Encode(w *Writer) { w.WriteC(byte(p.Reason)) }
func (p *Disconnect) Decode(r *Reader) { p.Reason = DisconnectReason(r.ReadC()) }
