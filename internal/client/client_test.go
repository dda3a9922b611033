package client_test

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/tsom/server/internal/client"
	"github.com/tsom/server/internal/core/event"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/handler"
	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/netid"
	"github.com/tsom/server/internal/net/nettest"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/world"
)

func classes(t *testing.T) *entity.Registry {
	t.Helper()
	reg := entity.NewRegistry()
	require.NoError(t, reg.Register(entity.MustNewClass("player", []entity.Property{
		{Name: "name", Type: entity.TypeString, Networked: true},
	}, nil)))
	require.NoError(t, reg.Register(entity.MustNewClass("crate", []entity.Property{
		{Name: "mass", Type: entity.TypeFloat, Default: entity.Float(10), Networked: true},
	}, nil)))
	return reg
}

// loopback joins a server world and a client session through two in-memory
// peers. pump moves everything queued in either direction.
type loopback struct {
	world   *world.World
	manager *net.Manager
	server  *net.Session
	client  *net.Session
	handler *client.Handler

	serverSide *nettest.Peer // what the server sends
	clientSide *nettest.Peer // what the client sends
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	log := zaptest.NewLogger(t)
	w, err := world.New(world.Options{Name: "loop", PlayerClass: "player", ChunkSize: 32}, classes(t), event.NewBus(), log)
	require.NoError(t, err)
	m := net.NewManager(handler.NewFactory(&handler.Deps{World: w, MaxNicknameLength: 16, Log: log}),
		net.ManagerOptions{ProtocolVersion: 1}, log)

	lb := &loopback{
		world:      w,
		manager:    m,
		serverSide: nettest.NewPeer("client"),
		clientSide: nettest.NewPeer("server"),
	}
	lb.server = m.Connected(lb.serverSide, 1)
	require.NotNil(t, lb.server)

	lb.client = net.NewSession(1, lb.clientSide, 1, net.SessionOptions{}, log.Named("client"))
	lb.handler = net.SetHandler(lb.client, client.NewHandler(client.NewMirror(classes(t), log)))
	return lb
}

func (lb *loopback) pump() {
	lb.clientSide.Deliver(func(s nettest.Sent) { lb.manager.Received(lb.serverSide, s.Channel, s.Data) })
	lb.serverSide.Deliver(func(s nettest.Sent) { lb.client.HandlePacket(s.Data) })
}

func (lb *loopback) tick(dt time.Duration) {
	lb.world.Tick(dt)
	lb.pump()
}

func TestLoopback_JoinMirrorsWorld(t *testing.T) {
	lb := newLoopback(t)
	mirror := lb.handler.Mirror()

	require.NoError(t, lb.handler.Authenticate(lb.client, "alice"))
	lb.pump()
	require.True(t, lb.handler.Authenticated())
	assert.Equal(t, net.StatePlayer, lb.client.State())

	lb.tick(0)
	assert.Equal(t, []string{"alice"}, mirror.Players())
	assert.Equal(t, 2, mirror.Strings().Len())
	assert.Equal(t, 1, mirror.ChunkCount())
	require.Equal(t, 1, mirror.EntityCount())

	e, ok := mirror.Entity(0)
	require.True(t, ok)
	assert.Equal(t, "player", e.ClassName)
	require.NotNil(t, e.Instance)
	assert.Equal(t, entity.String("alice"), entity.MustGet[entity.String](e.Instance, "name"))

	_, err := lb.world.CreateEntity("crate", mgl32.Vec3{1, 2, 3}, mgl32.QuatIdent())
	require.NoError(t, err)
	lb.tick(0)
	require.Equal(t, 2, mirror.EntityCount())
	crate, ok := mirror.Entity(1)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, crate.Position)
	assert.Equal(t, entity.Float(10), entity.MustGet[entity.Float](crate.Instance, "mass"))
}

func TestLoopback_InputsAreAcknowledged(t *testing.T) {
	lb := newLoopback(t)
	mirror := lb.handler.Mirror()
	require.NoError(t, lb.handler.Authenticate(lb.client, "alice"))
	lb.pump()
	lb.tick(0)

	idx, err := lb.handler.SendInputs(lb.client, packet.PlayerInputs{MoveForward: true, Orientation: mgl32.QuatIdent()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, idx)
	sent := lb.clientSide.Sent[len(lb.clientSide.Sent)-1]
	assert.Equal(t, uint8(1), sent.Channel)
	assert.Equal(t, net.Unreliable, sent.Flags)

	lb.pump()
	lb.tick(time.Second)
	assert.Equal(t, idx, mirror.AckedInput())
	e, ok := mirror.Entity(0)
	require.True(t, ok)
	assert.InDelta(t, -6, e.Position.Z(), 1e-4)

	next, err := lb.handler.SendInputs(lb.client, packet.PlayerInputs{})
	require.NoError(t, err)
	assert.True(t, next.IsMoreRecent(idx))
}

func TestLoopback_DeletesAndChunks(t *testing.T) {
	lb := newLoopback(t)
	mirror := lb.handler.Mirror()
	require.NoError(t, lb.handler.Authenticate(lb.client, "alice"))
	lb.pump()
	lb.tick(0)

	id, err := lb.world.CreateEntity("crate", mgl32.Vec3{}, mgl32.QuatIdent())
	require.NoError(t, err)
	lb.tick(0)
	require.Equal(t, 2, mirror.EntityCount())

	require.NoError(t, lb.world.DestroyEntity(id))
	lb.tick(0)
	assert.Equal(t, 1, mirror.EntityCount())

	player := lb.world.Player(lb.server.ID)
	tr, _ := lb.world.Transform(player.Entity())
	tr.Position = mgl32.Vec3{100, 0, 0}
	lb.tick(0)
	require.Equal(t, 1, mirror.ChunkCount())
	c, ok := mirror.Chunk(1)
	require.True(t, ok)
	assert.Equal(t, [3]int32{3, 0, 0}, c.Position)
	_, ok = mirror.Chunk(0)
	assert.False(t, ok)
}

func TestLoopback_DisconnectReason(t *testing.T) {
	lb := newLoopback(t)
	require.NoError(t, lb.handler.Authenticate(lb.client, "alice"))
	lb.pump()

	lb.server.Disconnect(packet.ReasonServerShutdown)
	lb.pump()
	assert.Equal(t, packet.ReasonServerShutdown, lb.handler.Reason())
	assert.Equal(t, 0, lb.world.PlayerCount())
}

func TestLoopback_AuthRefused(t *testing.T) {
	lb := newLoopback(t)
	require.NoError(t, lb.handler.Authenticate(lb.client, ""))
	lb.pump()
	assert.False(t, lb.handler.Authenticated())
	assert.True(t, lb.handler.AuthFailed())
	assert.Equal(t, packet.ReasonAuthRejected, lb.handler.Reason())

	_, err := lb.handler.SendInputs(lb.client, packet.PlayerInputs{})
	assert.ErrorIs(t, err, client.ErrNotAuthenticated)
}

func TestLoopback_TestEcho(t *testing.T) {
	lb := newLoopback(t)
	var got []string
	lb.handler.OnTest = func(msg string) { got = append(got, msg) }
	require.NoError(t, lb.client.Send(&packet.Test{Message: "hello"}))
	lb.pump()
	assert.Equal(t, []string{"hello"}, got)
}

// serverSession wraps a client handler in a session fed directly with
// hand-built packets.
func serverSession(t *testing.T, reg *entity.Registry) (*net.Session, *client.Handler) {
	t.Helper()
	s := net.NewSession(1, nettest.NewPeer("server"), 1, net.SessionOptions{}, zap.NewNop())
	h := net.SetHandler(s, client.NewHandler(client.NewMirror(reg, zap.NewNop())))
	return s, h
}

func TestMirror_ToleratesBadBatchEntries(t *testing.T) {
	s, h := serverSession(t, classes(t))
	s.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{StartID: 0, Strings: []string{"player", "crate"}}))
	s.HandlePacket(packet.MustMarshal(&packet.EntitiesCreation{Entities: []packet.EntityCreation{
		{EntityID: 4, ClassID: 1, Rotation: mgl32.QuatIdent()},
		{EntityID: 5, ClassID: 9, Rotation: mgl32.QuatIdent()}, // no such string
		{EntityID: 6, ClassID: 1, Properties: []packet.EntityProperty{{Index: 3, Value: entity.Float(1)}}},
		{EntityID: 4, ClassID: 1}, // duplicate index
		{EntityID: 7, ClassID: 1, Properties: []packet.EntityProperty{{Index: 0, Value: entity.Bool(true)}}},
	}}))
	m := h.Mirror()
	assert.Equal(t, 1, m.EntityCount())
	_, ok := m.Entity(4)
	assert.True(t, ok)

	s.HandlePacket(packet.MustMarshal(&packet.EntitiesDelete{Entities: []uint32{4, 99}}))
	assert.Equal(t, 0, m.EntityCount())
	assert.Equal(t, net.StateInitial, s.State(), "mirror errors never drop the link")
}

func TestMirror_UnknownClassKeepsRawProperties(t *testing.T) {
	s, h := serverSession(t, nil)
	s.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{Strings: []string{"ship"}}))
	s.HandlePacket(packet.MustMarshal(&packet.EntitiesCreation{Entities: []packet.EntityCreation{{
		EntityID:   2,
		ClassID:    0,
		Rotation:   mgl32.QuatIdent(),
		Properties: []packet.EntityProperty{{Index: 2, Value: entity.Integer(100)}},
	}}}))
	e, ok := h.Mirror().Entity(netid.Index(2))
	require.True(t, ok)
	assert.Equal(t, "ship", e.ClassName)
	assert.Nil(t, e.Instance)
	assert.Equal(t, map[uint16]entity.Value{2: entity.Integer(100)}, e.Properties)
}

func TestMirror_StringsResync(t *testing.T) {
	s, h := serverSession(t, nil)
	st := h.Mirror().Strings()
	s.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{Strings: []string{"a", "b"}}))
	s.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{StartID: 1, Strings: []string{"c"}}))
	assert.Equal(t, 2, st.Len())
	got, err := st.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "c", got)

	s.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{StartID: 5, Strings: []string{"z"}}))
	assert.Equal(t, 2, st.Len(), "a gap is refused")
}

func TestMirror_NewEpochStartsOver(t *testing.T) {
	mirror := client.NewMirror(classes(t), zaptest.NewLogger(t))

	old := net.NewSession(1, nettest.NewPeer("server"), 1, net.SessionOptions{}, zap.NewNop())
	net.SetHandler(old, client.NewHandler(mirror))
	old.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{Strings: []string{"player", "crate"}}))
	old.HandlePacket(packet.MustMarshal(&packet.EntitiesCreation{Entities: []packet.EntityCreation{
		{EntityID: 1, ClassID: 1, Rotation: mgl32.QuatIdent()},
	}}))
	old.HandlePacket(packet.MustMarshal(&packet.PlayerJoin{Name: "alice"}))
	assert.Equal(t, old.Epoch, mirror.Epoch())
	require.Equal(t, 1, mirror.EntityCount())

	fresh := net.NewSession(2, nettest.NewPeer("server"), 1, net.SessionOptions{}, zap.NewNop())
	h := net.SetHandler(fresh, client.NewHandler(mirror))
	require.NoError(t, h.Authenticate(fresh, "bob"))
	assert.Equal(t, fresh.Epoch, mirror.Epoch())
	assert.Equal(t, 0, mirror.EntityCount())
	assert.Equal(t, 0, mirror.Strings().Len())
	assert.Empty(t, mirror.Players())

	old.HandlePacket(packet.MustMarshal(&packet.PlayerJoin{Name: "carol"}))
	old.HandlePacket(packet.MustMarshal(&packet.EntitiesCreation{Entities: []packet.EntityCreation{
		{EntityID: 2, ClassID: 0, Rotation: mgl32.QuatIdent()},
	}}))
	assert.Empty(t, mirror.Players(), "packets from the ended epoch are refused")
	assert.Equal(t, 0, mirror.EntityCount())

	fresh.HandlePacket(packet.MustMarshal(&packet.NetworkStrings{Strings: []string{"player"}}))
	fresh.HandlePacket(packet.MustMarshal(&packet.EntitiesCreation{Entities: []packet.EntityCreation{
		{EntityID: 1, ClassID: 0, Rotation: mgl32.QuatIdent()},
	}}))
	e, ok := mirror.Entity(1)
	require.True(t, ok, "an index from the old epoch can be reused")
	assert.Equal(t, "player", e.ClassName)
}
