// Package world is the authoritative simulation a server exposes to its
// clients: entities, chunks and the players bound to sessions.
package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/core/event"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/net/netid"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/net/stringstore"
)

var (
	ErrNameTaken     = errors.New("world: player name in use")
	ErrUnknownEntity = errors.New("world: unknown entity")
	ErrUnknownChunk  = errors.New("world: unknown chunk")
	ErrChunkExists   = errors.New("world: chunk exists")
)

// Options are the world settings taken from config.
type Options struct {
	Name                string
	PlayerClass         string
	ChunkRadius         int
	ChunkSize           uint32
	StateUpdateInterval int
}

// World owns one simulation instance. Each world has its own class registry,
// string store and network index maps; nothing is shared between worlds.
// Accessed only from the game loop goroutine.
type World struct {
	opts    Options
	classes *entity.Registry
	strings *stringstore.Store
	bus     *event.Bus

	ecs        *ecs.World
	instances  *ecs.Store[entity.ClassInstance]
	transforms *ecs.Store[Transform]
	bodies     *ecs.Store[Body]

	entityIDs *netid.Map[ecs.EntityID]
	chunkIDs  *netid.Map[*Chunk]
	chunks    map[ChunkPos]*Chunk

	players       map[uint64]*Player // by session id
	playersByName map[string]*Player

	pending  replication
	tick     uint64
	maxBatch int // entries per replication packet

	log *zap.Logger
}

func New(opts Options, classes *entity.Registry, bus *event.Bus, log *zap.Logger) (*World, error) {
	if _, err := classes.Find(opts.PlayerClass); err != nil {
		return nil, fmt.Errorf("player class: %w", err)
	}
	if opts.StateUpdateInterval < 1 {
		opts.StateUpdateInterval = 1
	}
	if opts.ChunkSize == 0 {
		return nil, errors.New("world: chunk size is zero")
	}
	w := &World{
		opts:          opts,
		classes:       classes,
		strings:       stringstore.New(),
		bus:           bus,
		ecs:           ecs.NewWorld(),
		instances:     ecs.NewStore[entity.ClassInstance](),
		transforms:    ecs.NewStore[Transform](),
		bodies:        ecs.NewStore[Body](),
		entityIDs:     netid.NewMap[ecs.EntityID](),
		chunkIDs:      netid.NewMap[*Chunk](),
		chunks:        make(map[ChunkPos]*Chunk),
		players:       make(map[uint64]*Player),
		playersByName: make(map[string]*Player),
		maxBatch:      packet.MaxCount,
		log:           log.With(zap.String("world", opts.Name)),
	}
	w.ecs.Register(w.instances)
	w.ecs.Register(w.transforms)
	w.ecs.Register(w.bodies)
	w.ecs.OnDestroy(w.onEntityDestroyed)

	// Class names are what entity creations reference; intern them all up
	// front so the first snapshot carries them.
	classes.Each(func(c *entity.Class) { w.strings.Register(c.Name()) })
	w.pending.stringsSent = w.strings.Next()
	return w, nil
}

func (w *World) Classes() *entity.Registry       { return w.classes }
func (w *World) Strings() *stringstore.Store     { return w.strings }
func (w *World) ECS() *ecs.World                 { return w.ecs }
func (w *World) Ticks() uint64                   { return w.tick }
func (w *World) EntityCount() int                { return w.entityIDs.Len() }
func (w *World) ChunkCount() int                 { return len(w.chunks) }
func (w *World) PlayerCount() int                { return len(w.players) }
func (w *World) Player(sessionID uint64) *Player { return w.players[sessionID] }

// CreateEntity spawns an entity of the named class, runs its init callback
// and assigns it a network index. It is replicated on the next tick.
func (w *World) CreateEntity(className string, pos mgl32.Vec3, rot mgl32.Quat) (ecs.EntityID, error) {
	class, err := w.classes.Find(className)
	if err != nil {
		return 0, err
	}
	id := w.ecs.CreateEntity()
	w.transforms.Set(id, &Transform{Position: pos, Rotation: orientation(rot)})
	if _, err := class.InitializeEntity(w.instances, id); err != nil {
		w.ecs.Discard(id)
		return 0, err
	}
	if _, err := w.entityIDs.Allocate(id); err != nil {
		w.ecs.Discard(id)
		return 0, err
	}
	w.strings.Register(class.Name())
	w.pending.created = append(w.pending.created, id)
	return id, nil
}

// DestroyEntity unmaps id from the network at once and queues the entity
// for the cleanup phase.
func (w *World) DestroyEntity(id ecs.EntityID) error {
	if !w.ecs.Alive(id) || w.ecs.Pending(id) {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if idx, ok := w.entityIDs.Remove(id); ok {
		w.pending.entityRemoved(id, idx)
	}
	w.ecs.MarkForDestruction(id)
	return nil
}

func (w *World) onEntityDestroyed(id ecs.EntityID) {
	class := ""
	if inst, ok := w.instances.Get(id); ok {
		class = inst.Class().Name()
	}
	event.Emit(w.bus, event.EntityDestroyed{Entity: id, Class: class})
}

// Instance returns the property storage of a live entity.
func (w *World) Instance(id ecs.EntityID) (*entity.ClassInstance, bool) {
	if !w.ecs.Alive(id) {
		return nil, false
	}
	return w.instances.Get(id)
}

// Transform returns the transform of a live entity.
func (w *World) Transform(id ecs.EntityID) (*Transform, bool) {
	if !w.ecs.Alive(id) {
		return nil, false
	}
	return w.transforms.Get(id)
}

// AttachBody gives id a rigid body integrated every tick.
func (w *World) AttachBody(id ecs.EntityID, b RigidBody) error {
	if !w.ecs.Alive(id) {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	w.bodies.Set(id, &Body{RigidBody: b})
	return nil
}

// EntityIndex returns the network index of id.
func (w *World) EntityIndex(id ecs.EntityID) (netid.Index, bool) { return w.entityIDs.Index(id) }

// EntityAt returns the entity behind a network index.
func (w *World) EntityAt(idx netid.Index) (ecs.EntityID, bool) { return w.entityIDs.Object(idx) }

// AddChunk registers the chunk at pos and assigns it a network index.
func (w *World) AddChunk(pos ChunkPos) (*Chunk, error) {
	if _, ok := w.chunks[pos]; ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkExists, pos)
	}
	c := &Chunk{Pos: pos, Size: w.opts.ChunkSize}
	if _, err := w.chunkIDs.Allocate(c); err != nil {
		return nil, err
	}
	w.chunks[pos] = c
	w.pending.chunksCreated = append(w.pending.chunksCreated, c)
	return c, nil
}

// RemoveChunk drops the chunk at pos. Both directions of its network
// mapping go away together.
func (w *World) RemoveChunk(pos ChunkPos) error {
	c, ok := w.chunks[pos]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChunk, pos)
	}
	delete(w.chunks, pos)
	if idx, ok := w.chunkIDs.Remove(c); ok {
		w.pending.chunkRemoved(c, idx)
	}
	return nil
}

func (w *World) Chunk(pos ChunkPos) (*Chunk, bool) {
	c, ok := w.chunks[pos]
	return c, ok
}

// ChunkIndex returns the network index of c.
func (w *World) ChunkIndex(c *Chunk) (netid.Index, bool) { return w.chunkIDs.Index(c) }

// ChunkAt returns the chunk behind a network index.
func (w *World) ChunkAt(idx netid.Index) (*Chunk, bool) { return w.chunkIDs.Object(idx) }

// CreatePlayer binds an authenticated session to a new player entity.
// Everyone already in the world is told about the newcomer; the newcomer
// gets a full snapshot on the next tick.
func (w *World) CreatePlayer(conn Sender, sessionID uint64, name string) (*Player, error) {
	if _, taken := w.playersByName[name]; taken {
		return nil, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	id, err := w.CreateEntity(w.opts.PlayerClass, mgl32.Vec3{}, mgl32.QuatIdent())
	if err != nil {
		return nil, fmt.Errorf("spawn player %q: %w", name, err)
	}
	if inst, ok := w.instances.Get(id); ok {
		if err := entity.Update(inst, "name", entity.String(name)); err != nil && !errors.Is(err, entity.ErrUnknownProperty) {
			w.log.Warn("player name property", zap.Error(err))
		}
	}
	if err := w.AttachBody(id, &KinematicBody{}); err != nil {
		return nil, err
	}

	p := &Player{
		Name:      name,
		SessionID: sessionID,
		conn:      conn,
		entity:    id,
		log:       w.log.With(zap.Uint64("session", sessionID), zap.String("player", name)),
	}
	w.broadcast(&packet.PlayerJoin{Name: name})
	w.players[sessionID] = p
	w.playersByName[name] = p
	event.Emit(w.bus, event.PlayerJoined{Name: name, SessionID: sessionID, Entity: id})
	p.log.Info("player joined", zap.Stringer("entity", id))
	return p, nil
}

// RemovePlayer unbinds p, destroys its entity and tells the others.
func (w *World) RemovePlayer(p *Player) {
	if w.players[p.SessionID] != p {
		return
	}
	delete(w.players, p.SessionID)
	delete(w.playersByName, p.Name)
	if err := w.DestroyEntity(p.entity); err != nil {
		p.log.Debug("player entity already gone", zap.Error(err))
	}
	w.broadcast(&packet.PlayerLeave{Name: p.Name})
	event.Emit(w.bus, event.PlayerLeft{Name: p.Name, SessionID: p.SessionID})
	p.log.Info("player left")
}

// broadcast sends pkt to every player that already has the world snapshot.
func (w *World) broadcast(pkt packet.Packet) {
	for _, p := range w.sortedPlayers() {
		if p.synced {
			p.send(pkt)
		}
	}
}

// Tick advances the simulation by dt and replicates the result.
func (w *World) Tick(dt time.Duration) {
	w.applyInputs()
	ecs.Each2(w.bodies, w.transforms, func(id ecs.EntityID, b *Body, tr *Transform) {
		if w.ecs.Pending(id) {
			return
		}
		b.Integrate(dt, tr)
	})
	w.streamChunks()
	w.replicate()
	w.tick++
}

func (w *World) applyInputs() {
	for _, p := range w.players {
		tr, ok := w.transforms.Get(p.entity)
		if !ok {
			continue
		}
		inst, ok := w.instances.Get(p.entity)
		if !ok {
			continue
		}
		b, ok := w.bodies.Get(p.entity)
		if !ok {
			continue
		}
		kb, ok := b.RigidBody.(*KinematicBody)
		if !ok {
			continue
		}
		tr.Rotation = orientation(p.inputs.Orientation)
		kb.Velocity = readMovement(inst).velocity(p.inputs, tr.Rotation)
	}
}

// streamChunks keeps exactly the chunks within the configured radius of
// some player.
func (w *World) streamChunks() {
	wanted := make(map[ChunkPos]bool)
	for _, p := range w.players {
		tr, ok := w.transforms.Get(p.entity)
		if !ok {
			continue
		}
		for _, c := range chunksAround(chunkAt(tr.Position, w.opts.ChunkSize), w.opts.ChunkRadius) {
			wanted[c] = true
		}
	}
	var stale []ChunkPos
	for pos := range w.chunks {
		if !wanted[pos] {
			stale = append(stale, pos)
		}
	}
	for _, pos := range sortChunkPositions(stale) {
		_ = w.RemoveChunk(pos)
	}
	fresh := make([]ChunkPos, 0, len(wanted))
	for pos := range wanted {
		fresh = append(fresh, pos)
	}
	for _, pos := range sortChunkPositions(fresh) {
		if _, ok := w.chunks[pos]; !ok {
			if _, err := w.AddChunk(pos); err != nil {
				w.log.Error("chunk add failed", zap.Stringer("chunk", pos), zap.Error(err))
			}
		}
	}
}
