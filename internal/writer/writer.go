// Package writer implements the image writer: it buffers incoming payload
// bytes into the host's minimum program unit and flushes full blocks to the
// ROM backend, tracking a linear write offset.
package writer

import (
	"fmt"

	"github.com/Sleuek/kocherga/internal/hostio"
)

// PadByte fills a partial trailing block on EndWrite.
const PadByte = 0xFF

// Writer accumulates bytes and flushes them to a hostio.ROMBackend in
// BlockSize-aligned chunks. It is not safe for concurrent use; the
// bootloader's single poll loop is its only caller.
type Writer struct {
	rom       hostio.ROMBackend
	blockSize int
	base      uint32 // image-relative start offset writes are counted from

	block    []byte // partial block accumulator, len < blockSize
	offset   uint32 // next flush offset, relative to base
	total    uint32 // total bytes accepted via Write
	fatal    error
}

// New creates a Writer that flushes blockSize-byte blocks to rom, starting
// at image-relative offset base.
func New(rom hostio.ROMBackend, blockSize int, base uint32) *Writer {
	return &Writer{
		rom:       rom,
		blockSize: blockSize,
		base:      base,
		block:     make([]byte, 0, blockSize),
	}
}

// BeginWrite resets the writer to accept a fresh image from offset 0.
// Callers that need brick-proof invalidation (zeroing the resident
// descriptor before the first byte lands) do that themselves, e.g. via
// appinfo.Invalidate, before calling BeginWrite — the writer only owns
// block buffering.
func (w *Writer) BeginWrite() {
	w.block = w.block[:0]
	w.offset = 0
	w.total = 0
	w.fatal = nil
}

// Write appends p to the block accumulator, flushing full blocks to the ROM
// backend as they fill. p may be any length, including zero. It returns the
// first fatal backend error encountered, if any; once fatal, a Writer must
// not be reused without a fresh BeginWrite.
func (w *Writer) Write(p []byte) error {
	if w.fatal != nil {
		return w.fatal
	}
	for len(p) > 0 {
		room := w.blockSize - len(w.block)
		n := room
		if n > len(p) {
			n = len(p)
		}
		w.block = append(w.block, p[:n]...)
		p = p[n:]
		w.total += uint32(n)

		if len(w.block) == w.blockSize {
			if err := w.flush(w.block); err != nil {
				w.fatal = err
				return err
			}
			w.block = w.block[:0]
		}
	}
	return nil
}

// EndWrite flushes any partial trailing block, padded with PadByte, and
// returns the total number of bytes accepted since BeginWrite.
func (w *Writer) EndWrite() (uint32, error) {
	if w.fatal != nil {
		return w.total, w.fatal
	}
	if len(w.block) > 0 {
		padded := make([]byte, w.blockSize)
		copy(padded, w.block)
		for i := len(w.block); i < w.blockSize; i++ {
			padded[i] = PadByte
		}
		if err := w.flush(padded); err != nil {
			w.fatal = err
			return w.total, err
		}
		w.block = w.block[:0]
	}
	return w.total, nil
}

// TotalWritten reports the number of payload bytes accepted so far (not
// counting pad bytes), as of the last Write or EndWrite call.
func (w *Writer) TotalWritten() uint32 {
	return w.total
}

func (w *Writer) flush(block []byte) error {
	if err := w.rom.Write(w.base+w.offset, block); err != nil {
		return fmt.Errorf("writer: block flush at offset %d failed: %w", w.offset, err)
	}
	w.offset += uint32(len(block))
	return nil
}
