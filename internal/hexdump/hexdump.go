// Package hexdump renders byte slices for diagnostic logging, laid out in
// fixed 16-column rows so multi-frame dumps line up in a terminal.
package hexdump

import (
	"fmt"
	"strings"
)

const columns = 16

// Dump renders data as a multi-line hex dump, one row per 16 bytes: an
// 8-digit offset, 16 space-separated two-digit hex byte columns (missing
// trailing columns on the last row are blank, not omitted), then the ASCII
// rendering of that row (non-printable bytes shown as '.', missing columns
// left blank).
func Dump(data []byte) string {
	var lines []string
	for off := 0; off < len(data) || off == 0; off += columns {
		end := off + columns
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]
		lines = append(lines, line(off, row))
		if end == len(data) {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func line(offset int, row []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%08x  ", offset)
	for i := 0; i < columns; i++ {
		if i < len(row) {
			fmt.Fprintf(&b, "%02x ", row[i])
		} else {
			b.WriteString("   ")
		}
	}
	b.WriteString("  ")
	for i := 0; i < columns; i++ {
		if i < len(row) {
			c := row[i]
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
