// Package crc wraps the two checksum algorithms the bootloader's integrity
// primitives are built on: CRC-64-WE over firmware images and volatile
// storage records, and CRC-32C (Castagnoli) over serial frames.
package crc

import (
	"github.com/pasztorpisti/go-crc"
)

// Size64 is the encoded length, in bytes, of a CRC-64-WE value.
const Size64 = 8

// Size32 is the encoded length, in bytes, of a CRC-32C value.
const Size32 = 4

// Of64 computes the CRC-64-WE of data in one shot.
func Of64(data []byte) uint64 {
	return crc.CRC64WE.Calc(data)
}

// Of32 computes the CRC-32C (Castagnoli) of data in one shot.
func Of32(data []byte) uint32 {
	return crc.CRC32C.Calc(data)
}

// Digest64 accumulates a CRC-64-WE value across multiple Update calls.
type Digest64 struct {
	c crc.CRC[uint64]
}

// NewDigest64 starts a fresh CRC-64-WE computation.
func NewDigest64() *Digest64 {
	return &Digest64{c: crc.CRC64WE.NewCRC()}
}

// Update feeds more bytes into the running CRC.
func (d *Digest64) Update(p []byte) {
	d.c.Update(p)
}

// Sum returns the CRC computed so far.
func (d *Digest64) Sum() uint64 {
	return d.c.Final()
}

// Residue returns the running register value; callers use this after also
// feeding the big-endian encoding of Sum() to confirm the stream the final
// CRC bytes were appended to is self-consistent.
func (d *Digest64) Residue() uint64 {
	return d.c.Residue()
}

// Digest32 accumulates a CRC-32C value across multiple Update calls.
type Digest32 struct {
	c crc.CRC[uint32]
}

// NewDigest32 starts a fresh CRC-32C computation.
func NewDigest32() *Digest32 {
	return &Digest32{c: crc.CRC32C.NewCRC()}
}

// Update feeds more bytes into the running CRC.
func (d *Digest32) Update(p []byte) {
	d.c.Update(p)
}

// Sum returns the CRC computed so far.
func (d *Digest32) Sum() uint32 {
	return d.c.Final()
}

// Residue returns the running register value, used to validate a frame by
// feeding it the little-endian trailer and checking against ResidueGood32.
func (d *Digest32) Residue() uint32 {
	return d.c.Residue()
}

// ResidueGood64 is the fixed register value CRC-64-WE settles on once the
// big-endian encoding of a correct CRC has been appended to the stream it
// protects.
const ResidueGood64 = 0xFCACBEBD5931A992

// ResidueGood32 is the fixed register value CRC-32C settles on once the
// little-endian encoding of a correct CRC has been appended to the frame it
// protects.
const ResidueGood32 = 0xB798B438

// PutUint64BE appends the big-endian encoding of v to dst, as used when
// trailing a CRC-64-WE value onto a stream for a residue check.
func PutUint64BE(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PutUint32LE appends the little-endian encoding of v to dst, as used when
// trailing a CRC-32C value onto a serial frame.
func PutUint32LE(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
