package bootloader

import (
	"testing"
	"time"

	"github.com/Sleuek/kocherga/internal/appinfo"
	"github.com/Sleuek/kocherga/internal/crc"
	"github.com/Sleuek/kocherga/internal/hostio"
	"github.com/Sleuek/kocherga/internal/reactor"
	"github.com/Sleuek/kocherga/internal/transport"
)

// Descriptor field offsets, duplicated here (rather than imported) because
// this package only needs them to fabricate test images, not to implement
// the format.
const (
	offSignature = 0
	offImageCRC  = 8
	offImageSize = 16
	offVersMaj   = 24
	offFlags     = 26
	offReserved  = 27
)

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

func buildValidImage(t *testing.T, size uint32) []byte {
	t.Helper()
	image := make([]byte, size)
	copy(image[offSignature:], []byte(appinfo.Signature))
	putLE32(image[offImageSize:], size)
	image[offVersMaj] = 1
	image[offFlags] = appinfo.FlagRelease
	image[offReserved] = 0xFF
	sum := crc.Of64(image)
	putLE64(image[offImageCRC:], sum)
	return image
}

func newTestBootloader(t *testing.T, rom hostio.ROMBackend, regionSize uint32) (*Bootloader, *hostio.NopReset) {
	t.Helper()
	reset := &hostio.NopReset{}
	region := hostio.NewRAMRegion(resumeHintSize + crc.Size64)
	cfg := Config{
		RegionStart:     0,
		RegionSize:      regionSize,
		BootDelay:       time.Nanosecond,
		StallTimeout:    time.Millisecond,
		MaxStallRetries: 1,
		ReadRequestSize: 4,
	}
	return New(cfg, rom, region, reset, reactor.Identity{Name: "test"}), reset
}

// Scenario 1: happy boot.
func TestHappyBoot(t *testing.T) {
	image := buildValidImage(t, 4096)
	rom := hostio.NewMemROM(len(image))
	rom.Write(0, image)

	bl, _ := newTestBootloader(t, rom, uint32(len(image)))

	state, final := bl.Poll(0)
	if state != BootDelay {
		t.Fatalf("state after entry = %v, want BootDelay", state)
	}
	if final {
		t.Fatalf("BootDelay reported as final")
	}

	// BootDelay is configured to 1ns in this test, so the very next poll
	// (1µs later) should already observe the deadline passed.
	state, final = bl.Poll(1)
	if state != ReadyToBoot || !final {
		t.Fatalf("state = %v final = %v, want ReadyToBoot/true", state, final)
	}

	info, ok := bl.GetAppInfo()
	if !ok || info.ImageSize != 4096 {
		t.Errorf("GetAppInfo = %+v, ok=%v", info, ok)
	}
}

// P8: ReadyToBoot only after verification succeeded.
func TestNoAppToBootWhenROMEmpty(t *testing.T) {
	rom := hostio.NewMemROM(4096)
	bl, _ := newTestBootloader(t, rom, 4096)

	state, final := bl.Poll(0)
	if state != NoAppToBoot || final {
		t.Fatalf("state = %v final = %v, want NoAppToBoot/false", state, final)
	}
	for i := 0; i < 5; i++ {
		state, _ = bl.Poll(uint64(i) * 1000)
		if state == ReadyToBoot {
			t.Fatalf("reached ReadyToBoot with no valid image")
		}
	}
}

// P9 / scenario 3: power loss mid-update leaves the descriptor invalidated,
// so the next boot observes NoAppToBoot rather than ReadyToBoot.
func TestPowerLossMidUpdateNeverBoots(t *testing.T) {
	image := buildValidImage(t, 4096)
	rom := hostio.NewMemROM(len(image))
	rom.Write(0, image)

	bl, _ := newTestBootloader(t, rom, uint32(len(image)))
	bl.Poll(0) // establishes BootDelay on the pre-existing valid image

	// Simulate a remote BeginSoftwareUpdate: this invalidates the descriptor
	// and starts accepting bytes.
	bl.onBeginUpdate(transport.NodeID(7), "/new.bin")
	if bl.GetState() != AppUpgradeInProgress {
		t.Fatalf("state = %v, want AppUpgradeInProgress", bl.GetState())
	}

	// Power is lost mid-stream: a fresh Bootloader over the same ROM
	// (descriptor now invalidated, new image incomplete) must never reach
	// ReadyToBoot.
	bl2, _ := newTestBootloader(t, rom, uint32(len(image)))
	for i := 0; i < 5; i++ {
		state, _ := bl2.Poll(uint64(i) * 1000)
		if state == ReadyToBoot {
			t.Fatalf("reached ReadyToBoot after interrupted update")
		}
	}
	if bl2.GetState() != NoAppToBoot {
		t.Errorf("state after restart = %v, want NoAppToBoot", bl2.GetState())
	}
}

func TestEmergencyStopDuringUpdateReturnsToNoApp(t *testing.T) {
	rom := hostio.NewMemROM(4096)
	bl, _ := newTestBootloader(t, rom, 4096)
	bl.Poll(0)

	bl.onBeginUpdate(transport.NodeID(3), "/x.bin")
	bl.onEmergencyStop()
	if bl.GetState() != NoAppToBoot {
		t.Errorf("state = %v, want NoAppToBoot", bl.GetState())
	}
}

func TestCancelBootOnlyAppliesFromBootDelay(t *testing.T) {
	image := buildValidImage(t, 4096)
	rom := hostio.NewMemROM(len(image))
	rom.Write(0, image)
	bl, _ := newTestBootloader(t, rom, uint32(len(image)))
	bl.Poll(0)
	if bl.GetState() != BootDelay {
		t.Fatalf("precondition: state = %v, want BootDelay", bl.GetState())
	}

	bl.onCancelBoot()
	if bl.GetState() != BootCancelled {
		t.Errorf("state = %v, want BootCancelled", bl.GetState())
	}

	// From NoAppToBoot, CancelBoot is a no-op.
	rom2 := hostio.NewMemROM(4096)
	bl2, _ := newTestBootloader(t, rom2, 4096)
	bl2.Poll(0)
	bl2.onCancelBoot()
	if bl2.GetState() != NoAppToBoot {
		t.Errorf("state = %v, want unchanged NoAppToBoot", bl2.GetState())
	}
}

func TestRestartRequestsPlatformReset(t *testing.T) {
	rom := hostio.NewMemROM(4096)
	bl, reset := newTestBootloader(t, rom, 4096)
	bl.Poll(0)

	bl.onRestart()
	if reset.Requested() != 1 {
		t.Errorf("reset requested %d times, want 1", reset.Requested())
	}
}
