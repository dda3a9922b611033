package world

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/core/event"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/net/netid"
	"github.com/tsom/server/internal/net/packet"
)

type recorder struct {
	pkts []packet.Packet
}

func (r *recorder) Send(p packet.Packet) error {
	r.pkts = append(r.pkts, p)
	return nil
}

func (r *recorder) opcodes() []packet.Opcode {
	ops := make([]packet.Opcode, len(r.pkts))
	for i, p := range r.pkts {
		ops[i] = p.Opcode()
	}
	return ops
}

func (r *recorder) reset() { r.pkts = nil }

func testClasses(t *testing.T) *entity.Registry {
	t.Helper()
	reg := entity.NewRegistry()
	require.NoError(t, reg.Register(entity.MustNewClass("player", []entity.Property{
		{Name: "name", Type: entity.TypeString, Networked: true},
		{Name: "speed", Type: entity.TypeFloat, Default: entity.Float(6)},
	}, nil)))
	require.NoError(t, reg.Register(entity.MustNewClass("crate", []entity.Property{
		{Name: "mass", Type: entity.TypeFloat, Default: entity.Float(10), Networked: true},
	}, nil)))
	return reg
}

func newTestWorld(t *testing.T, opts Options) (*World, *event.Bus) {
	t.Helper()
	if opts.PlayerClass == "" {
		opts.PlayerClass = "player"
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 32
	}
	bus := event.NewBus()
	w, err := New(opts, testClasses(t), bus, zap.NewNop())
	require.NoError(t, err)
	return w, bus
}

// joined creates a player and runs one tick so it holds the snapshot.
func joined(t *testing.T, w *World, id uint64, name string) (*Player, *recorder) {
	t.Helper()
	rec := &recorder{}
	p, err := w.CreatePlayer(rec, id, name)
	require.NoError(t, err)
	w.Tick(0)
	return p, rec
}

func TestNew_RequiresPlayerClass(t *testing.T) {
	_, err := New(Options{PlayerClass: "ghost", ChunkSize: 32}, testClasses(t), event.NewBus(), zap.NewNop())
	assert.ErrorIs(t, err, entity.ErrUnknownClass)
}

func TestNew_InternsClassNames(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	id, ok := w.Strings().Find("player")
	require.True(t, ok)
	assert.EqualValues(t, 0, id)
	id, ok = w.Strings().Find("crate")
	require.True(t, ok)
	assert.EqualValues(t, 1, id)
}

func TestJoin_SnapshotOrder(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	rec := &recorder{}
	_, err := w.CreatePlayer(rec, 1, "alice")
	require.NoError(t, err)
	assert.Empty(t, rec.pkts, "nothing is sent before the first tick")

	w.Tick(0)
	assert.Equal(t, []packet.Opcode{
		packet.OpPlayerJoin,
		packet.OpNetworkStrings,
		packet.OpChunkCreate,
		packet.OpEntitiesCreation,
		packet.OpEntitiesStateUpdate,
	}, rec.opcodes())

	assert.Equal(t, "alice", rec.pkts[0].(*packet.PlayerJoin).Name)

	strs := rec.pkts[1].(*packet.NetworkStrings)
	assert.EqualValues(t, 0, strs.StartID)
	assert.Equal(t, []string{"player", "crate"}, strs.Strings)

	chunk := rec.pkts[2].(*packet.ChunkCreate)
	assert.EqualValues(t, 0, chunk.ChunkID)
	assert.Equal(t, [3]int32{0, 0, 0}, chunk.Position)
	assert.Equal(t, [3]uint32{32, 32, 32}, chunk.Size)

	created := rec.pkts[3].(*packet.EntitiesCreation)
	require.Len(t, created.Entities, 1)
	e := created.Entities[0]
	assert.EqualValues(t, 0, e.EntityID)
	assert.EqualValues(t, 0, e.ClassID)
	assert.Equal(t, []packet.EntityProperty{{Index: 0, Value: entity.String("alice")}}, e.Properties,
		"only networked properties are replicated")
}

func TestJoin_SecondPlayerGetsNoDuplicates(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	_, alice := joined(t, w, 1, "alice")
	alice.reset()

	bob := &recorder{}
	_, err := w.CreatePlayer(bob, 2, "bob")
	require.NoError(t, err)
	require.Equal(t, []packet.Opcode{packet.OpPlayerJoin}, alice.opcodes())
	assert.Equal(t, "bob", alice.pkts[0].(*packet.PlayerJoin).Name)

	w.Tick(0)
	assert.Equal(t, []packet.Opcode{
		packet.OpPlayerJoin,
		packet.OpEntitiesCreation,
		packet.OpEntitiesStateUpdate,
	}, alice.opcodes())
	created := alice.pkts[1].(*packet.EntitiesCreation)
	require.Len(t, created.Entities, 1)
	assert.EqualValues(t, 1, created.Entities[0].EntityID)

	assert.Equal(t, []packet.Opcode{
		packet.OpPlayerJoin,
		packet.OpPlayerJoin,
		packet.OpNetworkStrings,
		packet.OpChunkCreate,
		packet.OpEntitiesCreation,
		packet.OpEntitiesStateUpdate,
	}, bob.opcodes())
	assert.Equal(t, "alice", bob.pkts[0].(*packet.PlayerJoin).Name)
	assert.Equal(t, "bob", bob.pkts[1].(*packet.PlayerJoin).Name)
	assert.Len(t, bob.pkts[4].(*packet.EntitiesCreation).Entities, 2)
}

func TestCreatePlayer_NameTaken(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	joined(t, w, 1, "alice")
	_, err := w.CreatePlayer(&recorder{}, 2, "alice")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Equal(t, 1, w.PlayerCount())
}

func TestEntity_CreatedAndDestroyedInOneTickIsSilent(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	_, rec := joined(t, w, 1, "alice")
	rec.reset()

	id, err := w.CreateEntity("crate", mgl32.Vec3{1, 2, 3}, mgl32.QuatIdent())
	require.NoError(t, err)
	idx, ok := w.EntityIndex(id)
	require.True(t, ok)
	require.NoError(t, w.DestroyEntity(id))

	w.Tick(0)
	assert.Equal(t, []packet.Opcode{packet.OpEntitiesStateUpdate}, rec.opcodes())

	next, err := w.CreateEntity("crate", mgl32.Vec3{}, mgl32.QuatIdent())
	require.NoError(t, err)
	nextIdx, _ := w.EntityIndex(next)
	assert.Greater(t, nextIdx, idx, "indices are never reused")
}

func TestEntity_DestroyReplicatesDelete(t *testing.T) {
	w, bus := newTestWorld(t, Options{})
	_, rec := joined(t, w, 1, "alice")

	id, err := w.CreateEntity("crate", mgl32.Vec3{1, 2, 3}, mgl32.QuatIdent())
	require.NoError(t, err)
	rec.reset()
	w.Tick(0)
	require.Equal(t, []packet.Opcode{packet.OpEntitiesCreation, packet.OpEntitiesStateUpdate}, rec.opcodes())
	created := rec.pkts[0].(*packet.EntitiesCreation).Entities[0]
	assert.EqualValues(t, 1, created.ClassID)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, created.Position)
	assert.Equal(t, []packet.EntityProperty{{Index: 0, Value: entity.Float(10)}}, created.Properties)

	idx, _ := w.EntityIndex(id)
	require.NoError(t, w.DestroyEntity(id))
	_, ok := w.EntityAt(idx)
	assert.False(t, ok, "the mapping goes away immediately")
	assert.ErrorIs(t, w.DestroyEntity(id), ErrUnknownEntity)

	var destroyed []event.EntityDestroyed
	event.Subscribe(bus, func(e event.EntityDestroyed) { destroyed = append(destroyed, e) })

	rec.reset()
	w.Tick(0)
	require.Equal(t, []packet.Opcode{packet.OpEntitiesDelete, packet.OpEntitiesStateUpdate}, rec.opcodes())
	assert.Equal(t, []uint32{uint32(idx)}, rec.pkts[0].(*packet.EntitiesDelete).Entities)

	assert.Equal(t, 1, w.ECS().FlushDestroyQueue())
	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.EntityDestroyed{{Entity: id, Class: "crate"}}, destroyed)
}

func TestCreateEntity_UnknownClass(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	_, err := w.CreateEntity("ghost", mgl32.Vec3{}, mgl32.QuatIdent())
	assert.ErrorIs(t, err, entity.ErrUnknownClass)
	assert.Equal(t, 0, w.EntityCount())
}

func TestRemovePlayer(t *testing.T) {
	w, bus := newTestWorld(t, Options{})
	_, alice := joined(t, w, 1, "alice")
	bob, _ := joined(t, w, 2, "bob")
	bobIdx, _ := w.EntityIndex(bob.Entity())

	var left []event.PlayerLeft
	event.Subscribe(bus, func(e event.PlayerLeft) { left = append(left, e) })

	alice.reset()
	w.RemovePlayer(bob)
	assert.Nil(t, w.Player(2))
	require.Equal(t, []packet.Opcode{packet.OpPlayerLeave}, alice.opcodes())
	assert.Equal(t, "bob", alice.pkts[0].(*packet.PlayerLeave).Name)

	w.Tick(0)
	assert.Equal(t, packet.OpEntitiesDelete, alice.pkts[1].Opcode())
	assert.Equal(t, []uint32{uint32(bobIdx)}, alice.pkts[1].(*packet.EntitiesDelete).Entities)

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.PlayerLeft{{Name: "bob", SessionID: 2}}, left)

	// The name is free again and a second removal is a no-op.
	w.RemovePlayer(bob)
	_, err := w.CreatePlayer(&recorder{}, 3, "bob")
	assert.NoError(t, err)
}

func TestPushInputs_DropsStale(t *testing.T) {
	p := &Player{}
	assert.True(t, p.PushInputs(10, packet.PlayerInputs{Jump: true}))
	assert.False(t, p.PushInputs(10, packet.PlayerInputs{}), "duplicate")
	assert.False(t, p.PushInputs(9, packet.PlayerInputs{}), "older")
	assert.True(t, p.Inputs().Jump)

	assert.False(t, p.PushInputs(250, packet.PlayerInputs{}), "too far behind")
	p.lastInput = 250
	assert.True(t, p.PushInputs(3, packet.PlayerInputs{}), "wraps around")
	assert.EqualValues(t, 3, p.LastInputIndex())
}

func TestTick_InputsMovePlayer(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	p, rec := joined(t, w, 1, "alice")
	require.True(t, p.PushInputs(7, packet.PlayerInputs{MoveForward: true, Orientation: mgl32.QuatIdent()}))

	rec.reset()
	w.Tick(time.Second)
	tr, ok := w.Transform(p.Entity())
	require.True(t, ok)
	assert.InDelta(t, -6, tr.Position.Z(), 1e-4)
	assert.InDelta(t, 0, tr.Position.X(), 1e-4)

	update, ok := rec.pkts[len(rec.pkts)-1].(*packet.EntitiesStateUpdate)
	require.True(t, ok)
	assert.EqualValues(t, 7, update.LastInputIndex)
	require.Len(t, update.Entities, 1)
	assert.InDelta(t, -6, update.Entities[0].Position.Z(), 1e-4)
}

func TestTick_StateUpdateInterval(t *testing.T) {
	w, _ := newTestWorld(t, Options{StateUpdateInterval: 3})
	_, rec := joined(t, w, 1, "alice")
	rec.reset()

	var updates []uint16
	for i := 0; i < 6; i++ {
		w.Tick(0)
		for _, p := range rec.pkts {
			if u, ok := p.(*packet.EntitiesStateUpdate); ok {
				updates = append(updates, u.TickIndex)
			}
		}
		rec.reset()
	}
	assert.Equal(t, []uint16{3, 6}, updates)
	assert.EqualValues(t, 7, w.Ticks())
}

func TestStreamChunks_FollowsPlayer(t *testing.T) {
	w, _ := newTestWorld(t, Options{ChunkSize: 32})
	p, rec := joined(t, w, 1, "alice")
	first, ok := w.Chunk(ChunkPos{0, 0, 0})
	require.True(t, ok)
	firstIdx, _ := w.ChunkIndex(first)

	tr, _ := w.Transform(p.Entity())
	tr.Position = mgl32.Vec3{40, 0, 0}
	rec.reset()
	w.Tick(0)

	assert.Equal(t, []packet.Opcode{
		packet.OpChunkCreate,
		packet.OpChunkDestroy,
		packet.OpEntitiesStateUpdate,
	}, rec.opcodes())
	created := rec.pkts[0].(*packet.ChunkCreate)
	assert.Equal(t, [3]int32{1, 0, 0}, created.Position)
	assert.EqualValues(t, firstIdx, rec.pkts[1].(*packet.ChunkDestroy).ChunkID)

	_, ok = w.ChunkAt(firstIdx)
	assert.False(t, ok)
	assert.Equal(t, 1, w.ChunkCount())
}

func TestChunks_AddRemoveKeepsBothDirections(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	var idxs []netid.Index
	for z := int32(0); z < 10; z++ {
		c, err := w.AddChunk(ChunkPos{0, 0, z})
		require.NoError(t, err)
		idx, _ := w.ChunkIndex(c)
		idxs = append(idxs, idx)
	}
	_, err := w.AddChunk(ChunkPos{0, 0, 3})
	assert.ErrorIs(t, err, ErrChunkExists)

	require.NoError(t, w.RemoveChunk(ChunkPos{0, 0, 7}))
	_, ok := w.ChunkAt(idxs[7])
	assert.False(t, ok)
	for i, idx := range idxs {
		if i == 7 {
			continue
		}
		c, ok := w.ChunkAt(idx)
		require.True(t, ok)
		assert.Equal(t, ChunkPos{0, 0, int32(i)}, c.Pos)
	}
	assert.ErrorIs(t, w.RemoveChunk(ChunkPos{0, 0, 7}), ErrUnknownChunk)
}

func TestCreatePlayer_EmitsJoinEvent(t *testing.T) {
	w, bus := newTestWorld(t, Options{})
	var got []event.PlayerJoined
	event.Subscribe(bus, func(e event.PlayerJoined) { got = append(got, e) })

	p, _ := joined(t, w, 4, "dana")
	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []event.PlayerJoined{{Name: "dana", SessionID: 4, Entity: p.Entity()}}, got)

	inst, ok := w.Instance(p.Entity())
	require.True(t, ok)
	assert.Equal(t, entity.String("dana"), entity.MustGet[entity.String](inst, "name"))
}

func TestCreateEntity_FailedInitLeavesNoTrace(t *testing.T) {
	reg := testClasses(t)
	errBoom := errors.New("boom")
	require.NoError(t, reg.Register(entity.MustNewClass("bomb", nil, func(ecs.EntityID, *entity.ClassInstance) error {
		return errBoom
	})))
	bus := event.NewBus()
	w, err := New(Options{PlayerClass: "player", ChunkSize: 32}, reg, bus, zap.NewNop())
	require.NoError(t, err)

	var destroyed []event.EntityDestroyed
	event.Subscribe(bus, func(e event.EntityDestroyed) { destroyed = append(destroyed, e) })

	_, err = w.CreateEntity("bomb", mgl32.Vec3{}, mgl32.QuatIdent())
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, w.EntityCount())
	assert.Equal(t, 0, w.ECS().Len())
	assert.Equal(t, 0, w.ECS().FlushDestroyQueue())

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Empty(t, destroyed)
}

func TestReplication_SplitsBatchesAtLimit(t *testing.T) {
	w, _ := newTestWorld(t, Options{})
	w.maxBatch = 2
	_, alice := joined(t, w, 1, "alice")
	alice.reset()

	var crates []ecs.EntityID
	for i := 0; i < 3; i++ {
		id, err := w.CreateEntity("crate", mgl32.Vec3{float32(i), 0, 0}, mgl32.QuatIdent())
		require.NoError(t, err)
		crates = append(crates, id)
	}
	w.Strings().Register("label")
	w.Tick(0)
	require.Equal(t, []packet.Opcode{
		packet.OpNetworkStrings,
		packet.OpEntitiesCreation,
		packet.OpEntitiesCreation,
		packet.OpEntitiesStateUpdate,
		packet.OpEntitiesStateUpdate,
	}, alice.opcodes())
	assert.Len(t, alice.pkts[1].(*packet.EntitiesCreation).Entities, 2)
	assert.Len(t, alice.pkts[2].(*packet.EntitiesCreation).Entities, 1)
	assert.Len(t, alice.pkts[3].(*packet.EntitiesStateUpdate).Entities, 2)
	assert.Len(t, alice.pkts[4].(*packet.EntitiesStateUpdate).Entities, 2)

	_, bob := joined(t, w, 2, "bob")
	var strs []*packet.NetworkStrings
	for _, p := range bob.pkts {
		if ns, ok := p.(*packet.NetworkStrings); ok {
			strs = append(strs, ns)
		}
	}
	require.Len(t, strs, 2)
	assert.EqualValues(t, 0, strs[0].StartID)
	assert.Equal(t, []string{"player", "crate"}, strs[0].Strings)
	assert.EqualValues(t, 2, strs[1].StartID)
	assert.Equal(t, []string{"label"}, strs[1].Strings)

	alice.reset()
	for _, id := range crates {
		require.NoError(t, w.DestroyEntity(id))
	}
	w.Tick(0)
	var deleted [][]uint32
	for _, p := range alice.pkts {
		if del, ok := p.(*packet.EntitiesDelete); ok {
			deleted = append(deleted, del.Entities)
		}
	}
	assert.Equal(t, [][]uint32{{1, 2}, {3}}, deleted)
}
