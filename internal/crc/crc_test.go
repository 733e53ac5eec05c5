package crc

import "testing"

func TestOf64Check(t *testing.T) {
	got := Of64([]byte("123456789"))
	const want = 0x62EC59E3F1A4F00A
	if got != want {
		t.Errorf("Of64(\"123456789\") = %#x, want %#x", got, want)
	}
}

func TestOf64Residue(t *testing.T) {
	data := []byte("123456789")
	d := NewDigest64()
	d.Update(data)
	sum := d.Sum()

	d2 := NewDigest64()
	d2.Update(data)
	d2.Update(PutUint64BE(nil, sum))
	if got := d2.Residue(); got != ResidueGood64 {
		t.Errorf("residue = %#x, want %#x", got, ResidueGood64)
	}
}

func TestOf32Residue(t *testing.T) {
	data := []byte("123456789")
	d := NewDigest32()
	d.Update(data)
	sum := d.Sum()

	d2 := NewDigest32()
	d2.Update(data)
	d2.Update(PutUint32LE(nil, sum))
	if got := d2.Residue(); got != ResidueGood32 {
		t.Errorf("residue = %#x, want %#x", got, ResidueGood32)
	}
}

func TestDigestsAgreeWithOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	d64 := NewDigest64()
	d64.Update(data[:10])
	d64.Update(data[10:])
	if got, want := d64.Sum(), Of64(data); got != want {
		t.Errorf("streamed CRC-64-WE = %#x, want %#x", got, want)
	}

	d32 := NewDigest32()
	d32.Update(data[:10])
	d32.Update(data[10:])
	if got, want := d32.Sum(), Of32(data); got != want {
		t.Errorf("streamed CRC-32C = %#x, want %#x", got, want)
	}
}
