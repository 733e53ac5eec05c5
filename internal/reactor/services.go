// Package reactor implements the bootloader reactor: the transport-agnostic
// dispatcher for the node-protocol services the bootloader answers (GetInfo,
// ExecuteCommand, File.Read) plus the image pull loop and the 1 Hz node
// heartbeat. It never imports internal/bootloader — it reports outcomes
// upward through the Hooks callbacks supplied at construction, the same way
// internal/transport stays decoupled from it via transport.TransferSink.
package reactor

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/Sleuek/kocherga/internal/transport"
)

// Service identifiers are local to this implementation.
const (
	ServiceGetInfo        uint16 = 1
	ServiceExecuteCommand uint16 = 2
	ServiceFileRead       uint16 = 3
)

// HeartbeatSubjectID is the subject the 1 Hz node heartbeat publishes on.
const HeartbeatSubjectID uint16 = 341

// Node mode/health values, shared with internal/bootloader's state table.
const (
	ModeInitialization uint8 = 0
	ModeSoftwareUpdate uint8 = 3

	HealthOk      uint8 = 0
	HealthWarning uint8 = 1
	HealthError   uint8 = 2
)

// ExecuteCommand opcodes the reactor recognizes.
const (
	CommandBeginSoftwareUpdate uint8 = 1
	CommandEmergencyStop       uint8 = 2
	CommandFactoryReset        uint8 = 3
	CommandRestart             uint8 = 4
	// CommandCancelBoot asks the state machine to hold in BootCancelled
	// instead of launching the resident image.
	CommandCancelBoot uint8 = 5
)

// ExecuteCommand status codes returned to the caller.
const (
	CommandStatusSuccess    uint8 = 0
	CommandStatusFailure    uint8 = 1
	CommandStatusBadState   uint8 = 2
	CommandStatusBadCommand uint8 = 3
)

type getInfoResponse struct {
	SWVersionMajor uint8  `cbor:"1,keyasint"`
	SWVersionMinor uint8  `cbor:"2,keyasint"`
	SWVCSRevision  uint32 `cbor:"3,keyasint"`
	SWImageCRC     uint64 `cbor:"4,keyasint"`
	HWVersionMajor uint8  `cbor:"5,keyasint"`
	HWVersionMinor uint8  `cbor:"6,keyasint"`
	UniqueID       []byte `cbor:"7,keyasint"`
	Name           string `cbor:"8,keyasint"`
}

type executeCommandRequest struct {
	Command    uint8  `cbor:"1,keyasint"`
	ServerNode uint16 `cbor:"2,keyasint"`
	Path       string `cbor:"3,keyasint"`
}

type executeCommandResponse struct {
	Status uint8 `cbor:"1,keyasint"`
}

type fileReadRequest struct {
	Path   string `cbor:"1,keyasint"`
	Offset uint64 `cbor:"2,keyasint"`
	Size   uint32 `cbor:"3,keyasint"`
}

type fileReadResponse struct {
	Data []byte `cbor:"1,keyasint"`
}

type heartbeatPayload struct {
	UptimeSec uint32 `cbor:"1,keyasint"`
	Health    uint8  `cbor:"2,keyasint"`
	Mode      uint8  `cbor:"3,keyasint"`
	VSSC      uint16 `cbor:"4,keyasint"`
}

func marshal(v interface{}) []byte {
	b, err := cbor.Marshal(v)
	if err != nil {
		// Every type above is a fixed, cbor-safe shape; a marshal failure
		// here means a programming error, not a runtime condition.
		panic("reactor: cbor marshal of internal type failed: " + err.Error())
	}
	return b
}
