package serialproto

import (
	"github.com/Sleuek/kocherga/internal/crc"
	"github.com/Sleuek/kocherga/internal/transport"
)

// Sender is the one primitive the emitter needs: send a single byte, telling
// the caller whether the underlying medium accepted it. hostio.SerialPort
// satisfies this directly.
type Sender interface {
	Send(b byte) bool
}

// Emit streams t as one framed message to out: opening delimiter, escaped
// header, escaped payload, escaped payload CRC, closing delimiter — with no
// intermediate buffering. If out refuses any byte, Emit aborts immediately
// and returns false; the partial frame is discarded at the peer by the next
// delimiter it sees.
func Emit(out Sender, t transport.Transfer) bool {
	if !out.Send(Delimiter) {
		return false
	}

	header := buildHeader(t)
	for _, b := range header {
		if !sendEscaped(out, b) {
			return false
		}
	}

	payloadDigest := crc.NewDigest32()
	for _, b := range t.Payload {
		payloadDigest.Update([]byte{b})
		if !sendEscaped(out, b) {
			return false
		}
	}

	var crcBytes [CRCSize]byte
	putLE32(crcBytes[:], payloadDigest.Sum())
	for _, b := range crcBytes {
		if !sendEscaped(out, b) {
			return false
		}
	}

	return out.Send(Delimiter)
}

func sendEscaped(out Sender, b byte) bool {
	if b == Delimiter || b == Escape {
		if !out.Send(Escape) {
			return false
		}
		return out.Send(b ^ 0xFF)
	}
	return out.Send(b)
}
