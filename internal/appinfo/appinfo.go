// Package appinfo locates and verifies the AppInfo descriptor embedded in a
// resident application image. It is the bootloader's only source of truth
// for "is the thing in ROM safe to jump to."
package appinfo

import (
	"errors"

	"github.com/Sleuek/kocherga/internal/crc"
	"github.com/Sleuek/kocherga/internal/hostio"
)

// Signature is the literal byte pattern that opens a descriptor.
const Signature = "APDesc00"

// DescriptorSize is the fixed, 32-byte on-wire/in-ROM layout size.
const DescriptorSize = 32

// Field offsets within the descriptor.
const (
	offSignature  = 0
	offImageCRC   = 8
	offImageSize  = 16
	offVCSRev     = 20
	offVersionMaj = 24
	offVersionMin = 25
	offFlags      = 26
	offReserved   = 27
	offBuildTime  = 28
)

// Flag bits within AppInfo.Flags.
const (
	FlagRelease = 1 << 0
	FlagDirty   = 1 << 1
)

// AppInfo is the decoded, validated descriptor.
type AppInfo struct {
	ImageCRC          uint64
	ImageSize         uint32
	VCSRevision       uint32
	VersionMajor      uint8
	VersionMinor      uint8
	Flags             uint8
	Reserved          uint8
	BuildTimestampUTC uint32
}

// Release reports whether the release flag (bit0) is set.
func (a AppInfo) Release() bool { return a.Flags&FlagRelease != 0 }

// Dirty reports whether the dirty flag (bit1) is set.
func (a AppInfo) Dirty() bool { return a.Flags&FlagDirty != 0 }

// Located is the result of a successful Locate: the decoded descriptor plus
// where it sits relative to the start of the image region.
type Located struct {
	Info   AppInfo
	Offset uint32
}

var (
	// ErrNoValidImage is returned when no self-consistent descriptor exists
	// anywhere in the scanned region, or when the one found fails CRC
	// verification. The bootloader state machine treats both as "no image."
	ErrNoValidImage = errors.New("appinfo: no valid application image")
)

func decodeLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func decodeLE64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func decode(raw []byte) AppInfo {
	return AppInfo{
		ImageCRC:          decodeLE64(raw[offImageCRC : offImageCRC+8]),
		ImageSize:         decodeLE32(raw[offImageSize : offImageSize+4]),
		VCSRevision:       decodeLE32(raw[offVCSRev : offVCSRev+4]),
		VersionMajor:      raw[offVersionMaj],
		VersionMinor:      raw[offVersionMin],
		Flags:             raw[offFlags],
		Reserved:          raw[offReserved],
		BuildTimestampUTC: decodeLE32(raw[offBuildTime : offBuildTime+4]),
	}
}

// selfConsistent checks the invariants that make a signature match a
// candidate worth CRC-verifying: ImageSize fits the region and is a
// multiple of 8. The reserved byte is unconstrained.
func selfConsistent(info AppInfo, offsetInImage uint32, regionSize uint32) bool {
	if info.ImageSize%8 != 0 {
		return false
	}
	if info.ImageSize > regionSize {
		return false
	}
	descriptorEnd := offsetInImage + DescriptorSize
	return info.ImageSize >= descriptorEnd
}

// Locate scans 8-byte-aligned offsets in [0, regionSize) of the image
// starting at regionStart in rom for the first self-consistent APDesc00
// descriptor. It does not verify the image CRC — call Verify (or
// LocateAndVerify) for that.
func Locate(rom hostio.ROMBackend, regionStart, regionSize uint32) (Located, error) {
	sig := []byte(Signature)
	buf := make([]byte, DescriptorSize)
	for off := uint32(0); off+DescriptorSize <= regionSize; off += 8 {
		if err := rom.Read(regionStart+off, buf); err != nil {
			return Located{}, err
		}
		match := true
		for i := 0; i < len(sig); i++ {
			if buf[i] != sig[i] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		info := decode(buf)
		if selfConsistent(info, off, regionSize) {
			return Located{Info: info, Offset: off}, nil
		}
	}
	return Located{}, ErrNoValidImage
}

// Verify recomputes the CRC-64-WE over image bytes [0, ImageSize) as read
// from rom starting at regionStart, with the 8 bytes at the descriptor's
// ImageCRC field treated as zero, and compares against the stored value.
func Verify(rom hostio.ROMBackend, regionStart uint32, l Located) (bool, error) {
	image := make([]byte, l.Info.ImageSize)
	if err := rom.Read(regionStart, image); err != nil {
		return false, err
	}
	crcFieldStart := l.Offset + offImageCRC
	for i := uint32(0); i < 8; i++ {
		image[crcFieldStart+i] = 0
	}
	got := crc.Of64(image)
	return got == l.Info.ImageCRC, nil
}

// LocateAndVerify combines Locate and Verify, returning ErrNoValidImage if
// either step fails to produce a bootable descriptor. This is what the
// bootloader state machine calls at every boot and after every completed
// update.
func LocateAndVerify(rom hostio.ROMBackend, regionStart, regionSize uint32) (AppInfo, error) {
	l, err := Locate(rom, regionStart, regionSize)
	if err != nil {
		return AppInfo{}, err
	}
	ok, err := Verify(rom, regionStart, l)
	if err != nil {
		return AppInfo{}, err
	}
	if !ok {
		return AppInfo{}, ErrNoValidImage
	}
	return l.Info, nil
}

// Invalidate destructively zeroes the 8 signature bytes at offset 0 of the
// region, so that a partially-written image whose descriptor sits at offset 0
// can never be mistaken for a valid one. A descriptor at any other offset is
// not touched. It is safe to call even if no descriptor is present; it just
// overwrites offset 0.
func Invalidate(rom hostio.ROMBackend, regionStart uint32) error {
	zero := make([]byte, len(Signature))
	return rom.Write(regionStart+offSignature, zero)
}
