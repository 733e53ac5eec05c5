package serialproto

import (
	"github.com/Sleuek/kocherga/internal/crc"
	"github.com/Sleuek/kocherga/internal/transport"
)

type parseState int

const (
	stateIdle parseState = iota
	stateInHeader
	stateInPayload
)

// Parser is a streaming byte-stuffed frame parser. It is not safe for
// concurrent use; feed it bytes from exactly one goroutine (the transport's
// Poll), matching the bootloader's single-threaded cooperative polling
// model.
//
// The Transfer returned by Update references Parser's own payload buffer and
// is only valid until the next call to Update that reaches a new in-payload
// byte. Copy the payload before that if you need to keep it longer; the
// reactor does.
type Parser struct {
	maxPayload int

	state         parseState
	expectEscape  bool
	header        [HeaderSize]byte
	headerLen     int
	payload       []byte // len <= maxPayload+CRCSize, cap == maxPayload+CRCSize
	digest        *crc.Digest32
	pending       parsedHeader
}

// NewParser allocates a Parser whose payload buffer holds up to maxPayload
// bytes of application data (plus the trailing CRC), once, at construction —
// no further allocation happens while parsing.
func NewParser(maxPayload int) *Parser {
	p := &Parser{maxPayload: maxPayload}
	p.payload = make([]byte, 0, maxPayload+CRCSize)
	p.toIdle()
	return p
}

func (p *Parser) toIdle() {
	p.state = stateIdle
	p.expectEscape = false
	p.headerLen = 0
	p.payload = p.payload[:0]
}

func (p *Parser) startFrame() {
	p.state = stateInHeader
	p.expectEscape = false
	p.headerLen = 0
	p.payload = p.payload[:0]
	p.digest = crc.NewDigest32()
}

// Update feeds one received byte into the parser. It returns a completed
// Transfer and true if this byte closed a syntactically valid frame;
// otherwise it returns false. Malformed frames are dropped silently —
// Update never returns an error.
func (p *Parser) Update(b byte) (transport.Transfer, bool) {
	if p.state == stateIdle {
		if b == Delimiter {
			p.startFrame()
		}
		return transport.Transfer{}, false
	}

	if p.expectEscape {
		p.expectEscape = false
		if b == Escape {
			// A raw escape byte cannot legally follow another escape byte.
			p.toIdle()
			return transport.Transfer{}, false
		}
		return p.consume(b ^ 0xFF)
	}

	if b == Delimiter {
		return p.onDelimiter()
	}
	if b == Escape {
		p.expectEscape = true
		return transport.Transfer{}, false
	}
	return p.consume(b)
}

func (p *Parser) onDelimiter() (transport.Transfer, bool) {
	var xfer transport.Transfer
	ok := false
	if p.state == stateInPayload && len(p.payload) >= CRCSize && p.digest.Residue() == crc.ResidueGood32 {
		payload := p.payload[:len(p.payload)-CRCSize]
		xfer = transport.Transfer{
			Priority:    p.pending.priority,
			Source:      p.pending.source,
			Destination: p.pending.destination,
			Spec:        p.pending.spec,
			TransferID:  p.pending.transferID,
			Payload:     payload,
		}
		ok = true
	}
	// A delimiter always opens the next frame, whether or not this one
	// completed successfully.
	p.startFrame()
	return xfer, ok
}

func (p *Parser) consume(b byte) (transport.Transfer, bool) {
	switch p.state {
	case stateInHeader:
		p.header[p.headerLen] = b
		p.headerLen++
		p.digest.Update([]byte{b})

		if p.headerLen == 1 && b != FrameVersion {
			p.toIdle()
			return transport.Transfer{}, false
		}

		if p.headerLen == HeaderSize {
			feot := p.header[offFrameEOT : offFrameEOT+4]
			if feot[0] != singleFrameEOT[0] || feot[1] != singleFrameEOT[1] ||
				feot[2] != singleFrameEOT[2] || feot[3] != singleFrameEOT[3] {
				p.toIdle()
				return transport.Transfer{}, false
			}
			if p.digest.Residue() != crc.ResidueGood32 {
				p.toIdle()
				return transport.Transfer{}, false
			}
			p.pending = parseHeader(p.header[:])
			p.state = stateInPayload
			p.payload = p.payload[:0]
			p.digest = crc.NewDigest32()
		}
	case stateInPayload:
		if len(p.payload) >= cap(p.payload) {
			// Buffer overflow: abort, wait for the next delimiter.
			p.toIdle()
			return transport.Transfer{}, false
		}
		p.payload = append(p.payload, b)
		p.digest.Update([]byte{b})
	}
	return transport.Transfer{}, false
}
