package packet

import "fmt"

// Opcode is the leading byte of every packet. Server and client share one
// enumeration; OpcodeCount is the size of every dispatch table.
type Opcode byte

const (
	OpAuthRequest Opcode = iota
	OpAuthResponse
	OpTest
	OpNetworkStrings
	OpChunkCreate
	OpChunkDestroy
	OpEntitiesCreation
	OpEntitiesDelete
	OpEntitiesStateUpdate
	OpPlayerJoin
	OpPlayerLeave
	OpUpdatePlayerInputs
	OpDisconnect

	OpcodeCount
)

var opcodeNames = [OpcodeCount]string{
	OpAuthRequest:         "AuthRequest",
	OpAuthResponse:        "AuthResponse",
	OpTest:                "Test",
	OpNetworkStrings:      "NetworkStrings",
	OpChunkCreate:         "ChunkCreate",
	OpChunkDestroy:        "ChunkDestroy",
	OpEntitiesCreation:    "EntitiesCreation",
	OpEntitiesDelete:      "EntitiesDelete",
	OpEntitiesStateUpdate: "EntitiesStateUpdate",
	OpPlayerJoin:          "PlayerJoin",
	OpPlayerLeave:         "PlayerLeave",
	OpUpdatePlayerInputs:  "UpdatePlayerInputs",
	OpDisconnect:          "Disconnect",
}

func (op Opcode) String() string {
	if op < OpcodeCount {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", byte(op))
}

// DisconnectReason travels both in the Disconnect packet and as the
// transport-level disconnect data.
type DisconnectReason uint8

const (
	ReasonNone DisconnectReason = iota
	ReasonProtocolViolation
	ReasonAuthRejected
	ReasonVersionMismatch
	ReasonServerFull
	ReasonServerShutdown
	ReasonRateLimited
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonProtocolViolation:
		return "ProtocolViolation"
	case ReasonAuthRejected:
		return "AuthRejected"
	case ReasonVersionMismatch:
		return "VersionMismatch"
	case ReasonServerFull:
		return "ServerFull"
	case ReasonServerShutdown:
		return "ServerShutdown"
	case ReasonRateLimited:
		return "RateLimited"
	default:
		return fmt.Sprintf("DisconnectReason(%d)", uint8(r))
	}
}

// InputIndex is the wrapping sequence number stamped on player inputs.
type InputIndex uint8

// IsMoreRecent reports whether a comes after b in the cyclic index space:
// the signed 8-bit difference a-b is positive.
func (a InputIndex) IsMoreRecent(b InputIndex) bool {
	return int8(a-b) > 0
}
