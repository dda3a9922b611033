package handler_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsom/server/internal/core/event"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/handler"
	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/nettest"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/world"
)

type fixture struct {
	world   *world.World
	manager *net.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := entity.NewRegistry()
	require.NoError(t, reg.Register(entity.MustNewClass("player", []entity.Property{
		{Name: "name", Type: entity.TypeString, Networked: true},
	}, nil)))
	w, err := world.New(world.Options{Name: "test", PlayerClass: "player", ChunkSize: 32}, reg, event.NewBus(), log)
	require.NoError(t, err)

	deps := &handler.Deps{World: w, MaxNicknameLength: 8, Log: log}
	m := net.NewManager(handler.NewFactory(deps), net.ManagerOptions{
		ProtocolVersion: 1,
		Session:         net.SessionOptions{UnexpectedBurst: 4},
	}, log)
	return &fixture{world: w, manager: m}
}

func (f *fixture) connect(t *testing.T, addr string) (*net.Session, *nettest.Peer) {
	t.Helper()
	p := nettest.NewPeer(addr)
	s := f.manager.Connected(p, 1)
	require.NotNil(t, s)
	return s, p
}

func (f *fixture) send(p *nettest.Peer, pkt packet.Packet) {
	f.manager.Received(p, 0, packet.MustMarshal(pkt))
}

func (f *fixture) login(t *testing.T, addr, name string) (*net.Session, *nettest.Peer) {
	t.Helper()
	s, p := f.connect(t, addr)
	f.send(p, &packet.AuthRequest{Nickname: name})
	require.Equal(t, net.StatePlayer, s.State())
	return s, p
}

func TestAuth_SuccessSwapsToPlayer(t *testing.T) {
	f := newFixture(t)
	s, p := f.connect(t, "bob")
	assert.Equal(t, net.StateInitial, s.State())

	f.send(p, &packet.AuthRequest{Nickname: "Bob"})
	resp, sent, ok := nettest.Last[packet.AuthResponse](p)
	require.True(t, ok)
	assert.True(t, resp.Succeeded)
	assert.Equal(t, uint8(0), sent.Channel)
	assert.Equal(t, net.Reliable, sent.Flags)

	assert.Equal(t, net.StatePlayer, s.State())
	require.NotNil(t, f.world.Player(s.ID))
	assert.Equal(t, "Bob", f.world.Player(s.ID).Name)

	p.Reset()
	f.world.Tick(0)
	require.Equal(t, []packet.Opcode{
		packet.OpPlayerJoin,
		packet.OpNetworkStrings,
		packet.OpChunkCreate,
		packet.OpEntitiesCreation,
		packet.OpEntitiesStateUpdate,
	}, p.Opcodes())
	assert.Equal(t, uint8(0), p.Sent[0].Channel)
	for _, sent := range p.Sent[1:4] {
		assert.Equal(t, uint8(1), sent.Channel, sent.Opcode().String())
		assert.Equal(t, net.Reliable, sent.Flags, sent.Opcode().String())
	}
	assert.Equal(t, uint8(1), p.Sent[4].Channel)
	assert.Equal(t, net.Unreliable, p.Sent[4].Flags)
}

func TestAuth_NicknameIsNormalized(t *testing.T) {
	f := newFixture(t)
	s, _ := f.login(t, "a", "  Bob  ")
	assert.Equal(t, "Bob", f.world.Player(s.ID).Name)
}

func TestAuth_Rejections(t *testing.T) {
	for _, tc := range []struct {
		name     string
		nickname string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", "abcdefghij"},
		{"control character", "bo\x07b"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			s, p := f.connect(t, "x")
			f.send(p, &packet.AuthRequest{Nickname: tc.nickname})

			assert.Equal(t, []packet.Opcode{packet.OpAuthResponse, packet.OpDisconnect}, p.Opcodes())
			resp, _, ok := nettest.Last[packet.AuthResponse](p)
			require.True(t, ok)
			assert.False(t, resp.Succeeded)
			assert.True(t, p.Disconnected)
			assert.Equal(t, packet.ReasonAuthRejected, p.Reason)
			assert.Equal(t, net.StateDisconnected, s.State())
			assert.Equal(t, 0, f.world.PlayerCount())
		})
	}
}

func TestAuth_NameTaken(t *testing.T) {
	f := newFixture(t)
	f.login(t, "a", "alice")

	_, p := f.connect(t, "b")
	f.send(p, &packet.AuthRequest{Nickname: "alice"})
	resp, _, ok := nettest.Last[packet.AuthResponse](p)
	require.True(t, ok)
	assert.False(t, resp.Succeeded)
	assert.Equal(t, packet.ReasonAuthRejected, p.Reason)
	assert.Equal(t, 1, f.world.PlayerCount())
}

func TestInitial_InputsAreUnexpected(t *testing.T) {
	f := newFixture(t)
	s, p := f.connect(t, "a")

	f.send(p, &packet.UpdatePlayerInputs{InputIndex: 1, Inputs: packet.PlayerInputs{Jump: true, Orientation: mgl32.QuatIdent()}})
	assert.Empty(t, p.Sent)
	assert.False(t, p.Disconnected)
	assert.Equal(t, net.StateInitial, s.State())

	// The same packet is accepted once authenticated.
	f.send(p, &packet.AuthRequest{Nickname: "alice"})
	f.send(p, &packet.UpdatePlayerInputs{InputIndex: 1, Inputs: packet.PlayerInputs{Jump: true, Orientation: mgl32.QuatIdent()}})
	player := f.world.Player(s.ID)
	assert.True(t, player.Inputs().Jump)
	assert.EqualValues(t, 1, player.LastInputIndex())
}

func TestInitial_MalformedDisconnects(t *testing.T) {
	f := newFixture(t)
	s, p := f.connect(t, "a")
	f.manager.Received(p, 0, []byte{byte(packet.OpAuthRequest), 0xff})

	assert.True(t, p.Disconnected)
	assert.Equal(t, packet.ReasonProtocolViolation, p.Reason)
	assert.Equal(t, net.StateDisconnected, s.State())
}

func TestInitial_UnknownOpcodeKeepsSession(t *testing.T) {
	f := newFixture(t)
	s, p := f.connect(t, "a")
	f.manager.Received(p, 0, []byte{200, 1, 2})
	assert.False(t, p.Disconnected)
	assert.Equal(t, net.StateInitial, s.State())
}

func TestTest_EchoedInBothStates(t *testing.T) {
	f := newFixture(t)
	_, p := f.connect(t, "a")
	f.send(p, &packet.Test{Message: "ping"})
	got, _, ok := nettest.Last[packet.Test](p)
	require.True(t, ok)
	assert.Equal(t, "ping", got.Message)

	f.send(p, &packet.AuthRequest{Nickname: "alice"})
	f.send(p, &packet.Test{Message: "pong"})
	got, sent, ok := nettest.Last[packet.Test](p)
	require.True(t, ok)
	assert.Equal(t, "pong", got.Message)
	assert.Equal(t, net.Reliable, sent.Flags)
}

func TestPlayer_StaleInputsDropped(t *testing.T) {
	f := newFixture(t)
	s, p := f.login(t, "a", "alice")
	player := f.world.Player(s.ID)

	f.send(p, &packet.UpdatePlayerInputs{InputIndex: 5, Inputs: packet.PlayerInputs{MoveLeft: true}})
	f.send(p, &packet.UpdatePlayerInputs{InputIndex: 4, Inputs: packet.PlayerInputs{MoveRight: true}})
	assert.EqualValues(t, 5, player.LastInputIndex())
	assert.True(t, player.Inputs().MoveLeft)
	assert.False(t, player.Inputs().MoveRight)
}

func TestPlayer_DisconnectRemovesFromWorld(t *testing.T) {
	f := newFixture(t)
	_, alice := f.login(t, "a", "alice")
	_, bob := f.login(t, "b", "bob")
	f.world.Tick(0)
	require.Equal(t, 2, f.world.PlayerCount())

	alice.Reset()
	f.manager.Disconnected(bob)
	assert.Equal(t, 1, f.world.PlayerCount())
	leave, _, ok := nettest.Last[packet.PlayerLeave](alice)
	require.True(t, ok)
	assert.Equal(t, "bob", leave.Name)

	f.world.Tick(0)
	_, _, ok = nettest.Last[packet.EntitiesDelete](alice)
	assert.True(t, ok)
}

func TestPlayer_ServerDisconnectRemovesFromWorld(t *testing.T) {
	f := newFixture(t)
	s, p := f.login(t, "a", "alice")
	s.Disconnect(packet.ReasonServerShutdown)

	assert.Equal(t, packet.ReasonServerShutdown, p.Reason)
	assert.Equal(t, 0, f.world.PlayerCount())
	d, sent, ok := nettest.Last[packet.Disconnect](p)
	require.True(t, ok)
	assert.Equal(t, packet.ReasonServerShutdown, d.Reason)
	assert.Equal(t, net.Reliable, sent.Flags)
}
