package bootloader

import (
	"errors"

	"github.com/Sleuek/kocherga/internal/transport"
	"github.com/Sleuek/kocherga/internal/volatile"
)

// maxResumePath bounds the file path a resumeHint can carry; volatile.Storage
// requires a fixed-size payload, so the path is a length-prefixed
// fixed-size byte array rather than a Go string.
const maxResumePath = 120

// resumeHint is the "continue update from source X" record written to
// volatile storage just before a deliberate reset during
// AppUpgradeInProgress, consumed at most once on the next boot.
type resumeHint struct {
	server  transport.NodeID
	pathLen uint8
	path    [maxResumePath]byte
}

func (h resumeHint) Path() string {
	return string(h.path[:h.pathLen])
}

const resumeHintSize = 2 + 1 + maxResumePath

func marshalResumeHint(h resumeHint) []byte {
	b := make([]byte, resumeHintSize)
	b[0] = byte(h.server)
	b[1] = byte(h.server >> 8)
	b[2] = h.pathLen
	copy(b[3:], h.path[:])
	return b
}

var errResumeHintCorrupt = errors.New("bootloader: resume hint decoded with invalid path length")

func unmarshalResumeHint(b []byte) (resumeHint, error) {
	var h resumeHint
	h.server = transport.NodeID(uint16(b[0]) | uint16(b[1])<<8)
	h.pathLen = b[2]
	if int(h.pathLen) > maxResumePath {
		return resumeHint{}, errResumeHintCorrupt
	}
	copy(h.path[:], b[3:])
	return h, nil
}

func newResumeHintCodec() volatile.Codec[resumeHint] {
	return volatile.Codec[resumeHint]{
		Size:      resumeHintSize,
		Marshal:   marshalResumeHint,
		Unmarshal: unmarshalResumeHint,
	}
}

func makeResumeHint(server transport.NodeID, path string) resumeHint {
	if len(path) > maxResumePath {
		path = path[:maxResumePath]
	}
	var h resumeHint
	h.server = server
	h.pathLen = uint8(len(path))
	copy(h.path[:], path)
	return h
}
