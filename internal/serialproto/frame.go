// Package serialproto implements a byte-stuffed, CRC-32C-protected,
// self-synchronizing serial framing codec streamed over a hostio.SerialPort.
// This is the one transport implementation the core ships; any other
// transport (e.g. CAN) implements transport.Node on its own terms.
package serialproto

import (
	"github.com/Sleuek/kocherga/internal/crc"
	"github.com/Sleuek/kocherga/internal/transport"
)

// Delimiter frames a transfer; Escape introduces a stuffed byte.
const (
	Delimiter byte = 0x9E
	Escape    byte = 0x8E
)

// HeaderSize is the fixed, 32-byte frame header.
const HeaderSize = 32

// CRCSize is the length of the trailing payload CRC-32C.
const CRCSize = 4

// Header field offsets. Multi-byte fields are little-endian.
const (
	offVersion  = 0
	offPriority = 1
	offSource   = 2
	offDest     = 4
	offDataSpec = 6
	offReserved = 8
	offXferID   = 16
	offFrameEOT = 24
	offHeaderCR = 28
)

// FrameVersion is the only header version this codec accepts.
const FrameVersion = 0

// requestMask and responseMask tag a DataSpec as a service request or
// response; anything else is a message subject id.
const (
	requestMask  = 0x8000
	responseMask = 0xC000
)

var singleFrameEOT = [4]byte{0, 0, 0, 0x80}

func encodeDataSpec(spec transport.DataSpecifier) uint16 {
	switch spec.Kind {
	case transport.KindRequest:
		return spec.ID | requestMask
	case transport.KindResponse:
		return spec.ID | responseMask
	default:
		return spec.ID
	}
}

func decodeDataSpec(v uint16) transport.DataSpecifier {
	if v&responseMask == responseMask {
		return transport.DataSpecifier{Kind: transport.KindResponse, ID: v & 0x3FFF}
	}
	if v&requestMask == requestMask {
		return transport.DataSpecifier{Kind: transport.KindRequest, ID: v & 0x7FFF}
	}
	return transport.DataSpecifier{Kind: transport.KindMessage, ID: v}
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getLE16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getLE64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// buildHeader encodes the complete 32-byte header for t, including the
// HeaderCRC field (offset 28..31), which it computes over bytes 0..27.
func buildHeader(t transport.Transfer) [HeaderSize]byte {
	var h [HeaderSize]byte
	h[offVersion] = FrameVersion
	h[offPriority] = byte(t.Priority)
	putLE16(h[offSource:], uint16(t.Source))
	putLE16(h[offDest:], uint16(t.Destination))
	putLE16(h[offDataSpec:], encodeDataSpec(t.Spec))
	// offReserved..offReserved+8 left zero.
	putLE64(h[offXferID:], t.TransferID)
	copy(h[offFrameEOT:offFrameEOT+4], singleFrameEOT[:])
	sum := crc.Of32(h[:offHeaderCR])
	putLE32(h[offHeaderCR:], sum)
	return h
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// parsedHeader is the decoded, not-yet-fully-validated header of an
// in-progress frame.
type parsedHeader struct {
	priority    transport.Priority
	source      transport.NodeID
	destination transport.NodeID
	spec        transport.DataSpecifier
	transferID  uint64
}

func parseHeader(h []byte) parsedHeader {
	return parsedHeader{
		priority:    transport.Priority(h[offPriority]),
		source:      transport.NodeID(getLE16(h[offSource:])),
		destination: transport.NodeID(getLE16(h[offDest:])),
		spec:        decodeDataSpec(getLE16(h[offDataSpec:])),
		transferID:  getLE64(h[offXferID:]),
	}
}
