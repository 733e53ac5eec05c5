// apdesc-stamp is the build-side companion to internal/appinfo: it scans a
// freshly linked firmware image for the placeholder APDesc00 descriptor,
// fills in the fields only the build knows (image size, build timestamp),
// and writes the final CRC-64-WE so the bootloader core can verify it at
// boot. It shares internal/appinfo's field layout with the core instead of
// keeping a second copy of the format.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/Sleuek/kocherga/internal/appinfo"
	"github.com/Sleuek/kocherga/internal/crc"
)

var (
	imagePath    = flag.String("image", "", "Path to the raw firmware image to stamp, in place")
	vcsRevision  = flag.Uint64("vcs-revision", 0, "VCS revision (e.g. short commit hash as an integer) to embed")
	versionMajor = flag.Uint("version-major", 0, "Application version major")
	versionMinor = flag.Uint("version-minor", 0, "Application version minor")
	release      = flag.Bool("release", false, "Set the release flag bit")
	dirty        = flag.Bool("dirty", false, "Set the dirty (uncommitted changes) flag bit")
)

func main() {
	flag.Parse()
	if *imagePath == "" {
		log.Fatalf("-image is required")
	}

	f, err := os.OpenFile(*imagePath, os.O_RDWR, 0)
	if err != nil {
		log.Fatalf("open %s: %v", *imagePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatalf("stat %s: %v", *imagePath, err)
	}
	size := info.Size()

	image := make([]byte, size)
	if _, err := f.ReadAt(image, 0); err != nil {
		log.Fatalf("read %s: %v", *imagePath, err)
	}

	offset, err := findDescriptor(image)
	if err != nil {
		log.Fatalf("%s: %v", *imagePath, err)
	}

	// Pad the image with erased-flash bytes up to a multiple of 8; the padded
	// length is what ImageSize records and what the CRC covers.
	paddedSize := padTo8(uint32(size))
	for uint32(len(image)) < paddedSize {
		image = append(image, 0xFF)
	}

	flags := byte(0)
	if *release {
		flags |= appinfo.FlagRelease
	}
	if *dirty {
		flags |= appinfo.FlagDirty
	}

	putLE32(image[offset+offImageSizeRel:], paddedSize)
	putLE32(image[offset+offVCSRevRel:], uint32(*vcsRevision))
	image[offset+offVersionMajRel] = byte(*versionMajor)
	image[offset+offVersionMinRel] = byte(*versionMinor)
	image[offset+offFlagsRel] = flags
	putLE32(image[offset+offBuildTimeRel:], uint32(time.Now().UTC().Unix()))

	// ImageCRC is computed over the whole image with its own field masked to
	// zero, matching internal/appinfo.Verify's unmasking on the read side.
	crcFieldStart := offset + offImageCRCRel
	for i := 0; i < 8; i++ {
		image[crcFieldStart+i] = 0
	}
	sum := crc.Of64(image)
	putLE64(image[crcFieldStart:], sum)

	if _, err := f.WriteAt(image, 0); err != nil {
		log.Fatalf("write %s: %v", *imagePath, err)
	}

	log.Printf("stamped %s: offset=%d size=%d version=%d.%d vcs=%08x crc=%016x",
		*imagePath, offset, paddedSize, *versionMajor, *versionMinor, *vcsRevision, sum)
}

// Field offsets relative to the descriptor's own start, mirroring
// internal/appinfo's unexported layout; duplicated here because this is a
// separate main package with no access to appinfo's internals, same as the
// bootloader core's own tests do.
const (
	offImageCRCRel    = 8
	offImageSizeRel   = 16
	offVCSRevRel      = 20
	offVersionMajRel  = 24
	offVersionMinRel  = 25
	offFlagsRel       = 26
	offBuildTimeRel   = 28
)

func findDescriptor(image []byte) (int, error) {
	sig := []byte(appinfo.Signature)
	for off := 0; off+appinfo.DescriptorSize <= len(image); off += 8 {
		if matches(image[off:off+len(sig)], sig) {
			return off, nil
		}
	}
	return 0, appinfo.ErrNoValidImage
}

func matches(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func padTo8(n uint32) uint32 {
	return (n + 7) &^ 7
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
