// Package client is the receiving end of the session protocol: a handler
// for server packets and the world mirror it keeps up to date.
package client

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/net/netid"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/net/stringstore"
)

var (
	ErrUnknownEntity = errors.New("client: unknown entity index")
	ErrUnknownChunk  = errors.New("client: unknown chunk index")
)

// Entity is the client's copy of a replicated entity.
type Entity struct {
	Index     netid.Index
	ClassName string
	Position  mgl32.Vec3
	Rotation  mgl32.Quat

	// Instance is set when the class is known locally; otherwise the raw
	// networked values are kept in Properties by slot.
	Instance   *entity.ClassInstance
	Properties map[uint16]entity.Value
}

// Chunk is the client's copy of a streamed chunk.
type Chunk struct {
	Index    netid.Index
	Position [3]int32
	Size     [3]uint32
}

// Mirror is the client-side view of one server world. It is bound to one
// session epoch at a time; indices do not survive a reconnect.
type Mirror struct {
	epoch    uuid.UUID        // uuid.Nil until bound
	classes  *entity.Registry // may be nil
	strings  *stringstore.Store
	entities *netid.Map[*Entity]
	chunks   *netid.Map[*Chunk]
	players  map[string]bool

	tick      uint16
	lastInput packet.InputIndex

	log *zap.Logger
}

func NewMirror(classes *entity.Registry, log *zap.Logger) *Mirror {
	return &Mirror{
		classes:  classes,
		strings:  stringstore.New(),
		entities: netid.NewMap[*Entity](),
		chunks:   netid.NewMap[*Chunk](),
		players:  make(map[string]bool),
		log:      log,
	}
}

// Bind ties the mirror to a session epoch. Moving to another epoch forgets
// everything learned under the previous one.
func (m *Mirror) Bind(epoch uuid.UUID) {
	if epoch == m.epoch {
		return
	}
	prev := m.epoch
	m.epoch = epoch
	if prev == uuid.Nil {
		return
	}
	m.log.Debug("mirror rebound, state dropped",
		zap.Stringer("from", prev),
		zap.Stringer("to", epoch),
	)
	_ = m.strings.FillStore(0, nil)
	m.entities.Reset()
	m.chunks.Reset()
	clear(m.players)
	m.tick = 0
	m.lastInput = 0
}

func (m *Mirror) Epoch() uuid.UUID            { return m.epoch }
func (m *Mirror) Strings() *stringstore.Store { return m.strings }
func (m *Mirror) EntityCount() int            { return m.entities.Len() }
func (m *Mirror) ChunkCount() int             { return m.chunks.Len() }
func (m *Mirror) Tick() uint16                { return m.tick }

// AckedInput is the newest input index the server reported applying.
func (m *Mirror) AckedInput() packet.InputIndex { return m.lastInput }

func (m *Mirror) Entity(idx netid.Index) (*Entity, bool) { return m.entities.Object(idx) }
func (m *Mirror) Chunk(idx netid.Index) (*Chunk, bool)   { return m.chunks.Object(idx) }

// Players lists the roster in name order.
func (m *Mirror) Players() []string {
	out := make([]string, 0, len(m.players))
	for name := range m.players {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Entities visits entities in index order.
func (m *Mirror) Entities(fn func(*Entity)) {
	m.entities.Each(func(_ netid.Index, e *Entity) { fn(e) })
}

func (m *Mirror) applyStrings(p *packet.NetworkStrings) error {
	return m.strings.Apply(p)
}

func (m *Mirror) createChunk(p *packet.ChunkCreate) error {
	c := &Chunk{Index: netid.Index(p.ChunkID), Position: p.Position, Size: p.Size}
	return m.chunks.Add(c, c.Index)
}

func (m *Mirror) destroyChunk(p *packet.ChunkDestroy) error {
	if _, ok := m.chunks.RemoveIndex(netid.Index(p.ChunkID)); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChunk, p.ChunkID)
	}
	return nil
}

// createEntities applies a creation batch. A bad entry is reported and
// skipped; the rest of the batch still applies.
func (m *Mirror) createEntities(p *packet.EntitiesCreation) error {
	m.tick = p.TickIndex
	var errs []error
	for _, ec := range p.Entities {
		e, err := m.buildEntity(ec)
		if err == nil {
			err = m.entities.Add(e, e.Index)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("entity %d: %w", ec.EntityID, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) buildEntity(ec packet.EntityCreation) (*Entity, error) {
	className, err := m.strings.Lookup(stringstore.ID(ec.ClassID))
	if err != nil {
		return nil, fmt.Errorf("class: %w", err)
	}
	e := &Entity{
		Index:     netid.Index(ec.EntityID),
		ClassName: className,
		Position:  ec.Position,
		Rotation:  ec.Rotation,
	}
	class, err := m.findClass(className)
	if err != nil || class == nil {
		if err != nil {
			m.log.Debug("class not known locally", zap.String("class", className))
		}
		e.Properties = make(map[uint16]entity.Value, len(ec.Properties))
		for _, prop := range ec.Properties {
			e.Properties[prop.Index] = prop.Value
		}
		return e, nil
	}
	e.Instance = class.NewInstance()
	for _, prop := range ec.Properties {
		if int(prop.Index) >= class.PropertyCount() {
			return nil, fmt.Errorf("property slot %d beyond class %s", prop.Index, className)
		}
		if err := e.Instance.SetValue(int(prop.Index), prop.Value); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (m *Mirror) findClass(name string) (*entity.Class, error) {
	if m.classes == nil {
		return nil, nil
	}
	return m.classes.Find(name)
}

func (m *Mirror) deleteEntities(p *packet.EntitiesDelete) error {
	var errs []error
	for _, idx := range p.Entities {
		if _, ok := m.entities.RemoveIndex(netid.Index(idx)); !ok {
			errs = append(errs, fmt.Errorf("%w: %d", ErrUnknownEntity, idx))
		}
	}
	return errors.Join(errs...)
}

// updateStates moves known entities. States for indices the mirror lacks
// are ignored: the update is unreliable and may overtake a creation.
func (m *Mirror) updateStates(p *packet.EntitiesStateUpdate) {
	m.tick = p.TickIndex
	m.lastInput = p.LastInputIndex
	for _, st := range p.Entities {
		if e, ok := m.entities.Object(netid.Index(st.EntityID)); ok {
			e.Position = st.Position
			e.Rotation = st.Rotation
		}
	}
}

func (m *Mirror) playerJoined(name string) { m.players[name] = true }
func (m *Mirror) playerLeft(name string)   { delete(m.players, name) }
