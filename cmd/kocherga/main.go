package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sleuek/kocherga/internal/bootloader"
	"github.com/Sleuek/kocherga/internal/hexdump"
	"github.com/Sleuek/kocherga/internal/hostio"
	"github.com/Sleuek/kocherga/internal/reactor"
	"github.com/Sleuek/kocherga/internal/serialproto"
	"github.com/Sleuek/kocherga/internal/telemetry"
	"github.com/Sleuek/kocherga/internal/transport"
)

var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baudRate     = flag.Int("baud", 115200, "Serial baud rate")
	localNodeID  = flag.Uint("node-id", 125, "This node's UAVCAN node ID")

	romFile     = flag.String("rom-file", "kocherga-rom.img", "Path to the simulated flash image file")
	romSize     = flag.Int("rom-size", 256*1024, "Size of the simulated flash image, bytes")
	regionStart = flag.Uint("region-start", 0, "Offset of the application region within the ROM")
	regionSize  = flag.Uint("region-size", 256*1024, "Size of the application region, bytes")

	bootDelay = flag.Duration("boot-delay", bootloader.DefaultBootDelay, "Boot delay window before an untouched valid image is handed off")

	redisAddr = flag.String("redis-addr", "", "Redis server address for fleet telemetry; empty disables it")
	redisPass = flag.String("redis-pass", "", "Redis password")
	redisDB   = flag.Int("redis-db", 0, "Redis database number")
	redisKey  = flag.String("redis-key", "kocherga", "Redis hash key telemetry is written under")
	redisChan = flag.String("redis-channel", "kocherga:events", "Redis pub/sub channel telemetry is published to")

	pollInterval = flag.Duration("poll-interval", 2*time.Millisecond, "Interval between bootloader Poll calls")
	dumpROM      = flag.Bool("dump-rom-header", false, "Hex-dump the first descriptor-sized region of the ROM image at startup, for diagnostics")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting kocherga bootloader harness")
	log.Printf("Serial device: %s baud: %d node-id: %d", *serialDevice, *baudRate, *localNodeID)

	rom, err := hostio.OpenFileROM(*romFile, *romSize)
	if err != nil {
		log.Fatalf("Failed to open ROM image %s: %v", *romFile, err)
	}
	defer rom.Close()
	log.Printf("ROM image: %s (%d bytes)", *romFile, *romSize)

	if *dumpROM {
		header := make([]byte, 32)
		if err := rom.Read(uint32(*regionStart), header); err != nil {
			log.Printf("dump-rom-header: %v", err)
		} else {
			log.Printf("descriptor region at offset %d:\n%s", *regionStart, hexdump.Dump(header))
		}
	}

	port, err := hostio.OpenUART(*serialDevice, *baudRate)
	if err != nil {
		log.Fatalf("Failed to open serial port %s: %v", *serialDevice, err)
	}
	defer port.Close()
	log.Printf("Connected to %s", *serialDevice)

	var mirror *telemetry.Mirror
	if *redisAddr != "" {
		mirror, err = telemetry.New(*redisAddr, *redisPass, *redisDB, *redisKey, *redisChan)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer mirror.Close()
		log.Printf("Mirroring telemetry to Redis at %s", *redisAddr)
	}

	identity := reactor.Identity{
		HardwareVersionMajor: 1,
		Name:                 "org.kocherga.host-harness",
	}

	resumeRegion := hostio.NewRAMRegion(bootloader.ResumeRegionSize())

	bl := bootloader.New(bootloader.Config{
		RegionStart: uint32(*regionStart),
		RegionSize:  uint32(*regionSize),
		BootDelay:   *bootDelay,
	}, rom, resumeRegion, &processResetter{}, identity)

	node := serialproto.NewNode(port, transport.NodeID(*localNodeID), 2048)
	bl.AddNode(node)

	clock := hostio.NewRealClock()
	lastState := bootloader.State(-1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			log.Printf("Shutting down...")
			return
		case <-ticker.C:
			state, final := bl.Poll(clock.Microseconds())
			if state != lastState {
				log.Printf("state -> %s", state)
				lastState = state
				if mirror != nil {
					info, ok := bl.GetAppInfo()
					if err := mirror.ReportState(state, info, ok); err != nil {
						log.Printf("telemetry: report state: %v", err)
					}
				}
			}
			if mirror != nil && state == bootloader.AppUpgradeInProgress {
				if err := mirror.ReportProgress(uint64(bl.BytesWritten())); err != nil {
					log.Printf("telemetry: report progress: %v", err)
				}
			}
			if final {
				log.Printf("Application ready to boot; handing off")
				return
			}
		}
	}
}

// processResetter asks the platform for a reset by exiting this process; a
// real target instead jumps to its reset vector.
type processResetter struct{}

func (processResetter) Request() {
	log.Printf("Reset requested; exiting")
	os.Exit(0)
}
