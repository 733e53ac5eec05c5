// Package volatile implements a one-shot, CRC-protected cross-reset channel:
// a typed record written to a RAM region that survives a soft reset,
// trailed with a CRC-64-WE, consumed at most once and erased on a
// successful read regardless of outcome.
package volatile

import (
	"github.com/Sleuek/kocherga/internal/crc"
	"github.com/Sleuek/kocherga/internal/hostio"
)

// EraseByte is written across the whole region after a successful take.
const EraseByte = 0xCA

// Codec tells Storage how to turn a T into the fixed-size byte encoding that
// goes into the region, and back. Size must be the exact, constant length
// Marshal always produces; Go has no portable sizeof for an arbitrary T, so
// the caller states it explicitly instead of Storage guessing at layout.
type Codec[T any] struct {
	Size      int
	Marshal   func(T) []byte
	Unmarshal func([]byte) (T, error)
}

// Storage is a generic, CRC-protected cross-reset record of type T.
type Storage[T any] struct {
	region hostio.VolatileRegion
	codec  Codec[T]
}

// New binds a Codec to a region. The region must be exactly
// codec.Size+crc.Size64 bytes; StorageSize reports that size. Take never
// succeeds on a region of any other size.
func New[T any](region hostio.VolatileRegion, codec Codec[T]) *Storage[T] {
	return &Storage[T]{region: region, codec: codec}
}

// StorageSize returns sizeof(T)+8, the region size this Storage needs.
func (s *Storage[T]) StorageSize() int {
	return s.codec.Size + crc.Size64
}

// Store lays out p's encoding followed by its CRC-64-WE trailer.
func (s *Storage[T]) Store(p T) {
	buf := make([]byte, 0, s.StorageSize())
	buf = append(buf, s.codec.Marshal(p)...)
	sum := crc.Of64(buf)
	buf = crc.PutUint64BE(buf, sum)
	s.region.Write(buf)
}

// Take reads the region once. If the trailer verifies it decodes and returns
// the payload with ok=true, then unconditionally erases the whole region
// with EraseByte. If the trailer does not verify it returns ok=false and
// leaves the region untouched — most commonly because the region held
// nothing meaningful (e.g. cold boot, never stored).
func (s *Storage[T]) Take() (value T, ok bool) {
	raw := s.region.Read()
	size := s.StorageSize()
	if len(raw) != size {
		return value, false
	}
	payload := raw[:s.codec.Size]
	trailer := raw[s.codec.Size:size]
	want := decodeUint64BE(trailer)
	if crc.Of64(payload) != want {
		return value, false
	}

	decoded, err := s.codec.Unmarshal(payload)
	erased := make([]byte, size)
	for i := range erased {
		erased[i] = EraseByte
	}
	s.region.Write(erased)
	if err != nil {
		return value, false
	}
	return decoded, true
}

func decodeUint64BE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
