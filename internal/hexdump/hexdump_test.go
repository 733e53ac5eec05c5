package hexdump

import (
	"strings"
	"testing"
)

func TestDumpShortLine(t *testing.T) {
	got := Dump([]byte("123"))
	want := "00000000  31 32 33                                          123             "
	if got != want {
		t.Errorf("Dump(\"123\") =\n%q\nwant\n%q", got, want)
	}
}

func TestDumpWrapsIntoFourLines(t *testing.T) {
	data := []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz") // 62 bytes
	if len(data) != 62 {
		t.Fatalf("fixture is %d bytes, want 62", len(data))
	}
	got := Dump(data)
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), got)
	}
	if len(lines[3]) != len(lines[0]) {
		t.Errorf("last line not padded to full width: %d vs %d", len(lines[3]), len(lines[0]))
	}
	if !strings.Contains(lines[3], "xyz") {
		t.Errorf("last line missing tail bytes: %q", lines[3])
	}
}
