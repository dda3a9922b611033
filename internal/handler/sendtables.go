package handler

import (
	"github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
)

// Channel 0 carries session control, channel 1 the world stream. Everything
// that creates or removes a network index shares channel 1 so the client
// sees strings before the creations that reference them.
const (
	channelControl uint8 = 0
	channelWorld   uint8 = 1
)

var (
	control     = net.SendAttribute{Channel: channelControl, Flags: net.Reliable}
	worldStream = net.SendAttribute{Channel: channelWorld, Flags: net.Reliable}
	worldState  = net.SendAttribute{Channel: channelWorld, Flags: net.Unreliable}
)

var initialSend = net.NewSendTable(map[packet.Opcode]net.SendAttribute{
	packet.OpAuthResponse: control,
	packet.OpTest:         control,
	packet.OpDisconnect:   control,
})

var playerSend = net.NewSendTable(map[packet.Opcode]net.SendAttribute{
	packet.OpAuthResponse:        control,
	packet.OpTest:                control,
	packet.OpPlayerJoin:          control,
	packet.OpPlayerLeave:         control,
	packet.OpDisconnect:          control,
	packet.OpNetworkStrings:      worldStream,
	packet.OpChunkCreate:         worldStream,
	packet.OpChunkDestroy:        worldStream,
	packet.OpEntitiesCreation:    worldStream,
	packet.OpEntitiesDelete:      worldStream,
	packet.OpEntitiesStateUpdate: worldState,
})
