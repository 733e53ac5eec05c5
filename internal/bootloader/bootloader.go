// Package bootloader implements the top-level state machine: the policy
// deciding which state the device is in, what triggers each transition, and
// what survives across a reset. It is the only package that sees every
// other core package — crc, volatile, appinfo, writer, transport, reactor —
// and wires them into one brick-proof whole.
package bootloader

import (
	"time"

	"github.com/Sleuek/kocherga/internal/appinfo"
	"github.com/Sleuek/kocherga/internal/hostio"
	"github.com/Sleuek/kocherga/internal/reactor"
	"github.com/Sleuek/kocherga/internal/transport"
	"github.com/Sleuek/kocherga/internal/volatile"
	"github.com/Sleuek/kocherga/internal/writer"
)

// Bootloader is the public core object a host constructs once at startup.
// All of its state is reachable from this one value; there is no package
// level state anywhere in the core.
type Bootloader struct {
	cfg   Config
	rom   hostio.ROMBackend
	reset hostio.ResetRequester

	resumeStore *volatile.Storage[resumeHint]
	reactor     *reactor.Reactor
	writer      *writer.Writer

	state        State
	appInfo      appinfo.AppInfo
	appInfoValid bool

	entered      bool
	lastUptime   uint64
	bootDeadline time.Duration
}

// New constructs a Bootloader. rom is the image-relative ROM backend; region
// is the RAM region used for the cross-reset resume hint; resetReq is
// invoked when the state machine decides to request a platform reset.
// identity supplies the hardware fields the reactor's GetInfo handler
// reports.
func New(cfg Config, rom hostio.ROMBackend, region hostio.VolatileRegion, resetReq hostio.ResetRequester, identity reactor.Identity) *Bootloader {
	cfg = cfg.withDefaults()

	b := &Bootloader{
		cfg:         cfg,
		rom:         rom,
		reset:       resetReq,
		resumeStore: volatile.New(region, newResumeHintCodec()),
		writer:      writer.New(rom, cfg.BlockSize, cfg.RegionStart),
	}

	b.reactor = reactor.New(reactor.Config{
		StallTimeout:    cfg.StallTimeout,
		MaxStallRetries: cfg.MaxStallRetries,
		ReadRequestSize: cfg.ReadRequestSize,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
	}, identity, reactor.Hooks{
		BeginUpdate:    b.onBeginUpdate,
		UpdateFinished: b.onUpdateFinished,
		EmergencyStop:  b.onEmergencyStop,
		FactoryReset:   b.onFactoryReset,
		Restart:        b.onRestart,
		CancelBoot:     b.onCancelBoot,
		CurrentAppInfo: b.currentAppInfo,
		NodeStatus:     b.nodeStatus,
	}, b.writer)

	return b
}

// AddNode registers a transport with the reactor prior to polling.
func (b *Bootloader) AddNode(n transport.Node) {
	b.reactor.AddNode(n)
}

// GetState reports the current top-level state.
func (b *Bootloader) GetState() State {
	return b.state
}

// GetAppInfo reports the resident image's descriptor. It is only meaningful
// once discovery has completed — i.e. after the first Poll call — and ok is
// false if no valid image is currently known.
func (b *Bootloader) GetAppInfo() (appinfo.AppInfo, bool) {
	return b.appInfo, b.appInfoValid
}

// BytesWritten reports how many image bytes the current or most recent
// update has handed to the image writer (including bytes still buffered in
// a partial block), for host-side progress reporting.
func (b *Bootloader) BytesWritten() uint32 {
	return b.writer.TotalWritten()
}

// Poll drives every registered transport, dispatches any service requests
// and pull-loop responses they deliver, advances timers, and returns the
// current state together with whether it is the terminal ReadyToBoot state
// the host must now act on. uptimeMicros is microseconds since bootloader
// start and must never go backwards, matching hostio.Clock.
func (b *Bootloader) Poll(uptimeMicros uint64) (State, bool) {
	b.lastUptime = uptimeMicros
	if !b.entered {
		b.enter(uptimeMicros)
		b.entered = true
	}

	b.reactor.Poll(uptimeMicros)
	b.advance(uptimeMicros)

	return b.state, b.state == ReadyToBoot
}

// enter runs the one-time startup discovery: either resume an update a
// prior reset interrupted, or verify the resident image and start the
// boot-delay window, or accept that there is nothing to boot.
func (b *Bootloader) enter(uptimeMicros uint64) {
	if hint, ok := b.resumeStore.Take(); ok {
		appinfo.Invalidate(b.rom, b.cfg.RegionStart)
		b.writer.BeginWrite()
		b.reactor.BeginSession(hint.server, hint.Path())
		b.state = AppUpgradeInProgress
		return
	}

	info, err := appinfo.LocateAndVerify(b.rom, b.cfg.RegionStart, b.cfg.RegionSize)
	if err != nil {
		b.state = NoAppToBoot
		return
	}
	b.appInfo = info
	b.appInfoValid = true
	b.state = BootDelay
	b.bootDeadline = time.Duration(uptimeMicros)*time.Microsecond + b.cfg.BootDelay
}

func (b *Bootloader) advance(uptimeMicros uint64) {
	if b.state != BootDelay {
		return
	}
	now := time.Duration(uptimeMicros) * time.Microsecond
	if now >= b.bootDeadline {
		b.state = ReadyToBoot
	}
}

func (b *Bootloader) now() time.Duration {
	return time.Duration(b.lastUptime) * time.Microsecond
}

func (b *Bootloader) onBeginUpdate(server transport.NodeID, path string) {
	// Invalidate the resident descriptor before the first byte lands, so a
	// partially-written image is never mistaken for a valid one regardless
	// of how the write is later interrupted.
	appinfo.Invalidate(b.rom, b.cfg.RegionStart)
	b.writer.BeginWrite()
	b.appInfoValid = false
	b.state = AppUpgradeInProgress
}

func (b *Bootloader) onUpdateFinished(ok bool) {
	if !ok {
		b.state = NoAppToBoot
		return
	}
	info, err := appinfo.LocateAndVerify(b.rom, b.cfg.RegionStart, b.cfg.RegionSize)
	if err != nil {
		b.state = NoAppToBoot
		return
	}
	b.appInfo = info
	b.appInfoValid = true
	// Hand off promptly: zero remaining boot delay.
	b.bootDeadline = b.now()
	b.state = BootDelay
}

func (b *Bootloader) onEmergencyStop() {
	b.state = NoAppToBoot
}

func (b *Bootloader) onFactoryReset() {
	b.reactor.CancelSession()
	appinfo.Invalidate(b.rom, b.cfg.RegionStart)
	b.appInfoValid = false
	b.state = NoAppToBoot
}

func (b *Bootloader) onRestart() {
	if b.state == AppUpgradeInProgress {
		if server, path, ok := b.reactor.Session(); ok {
			// Record intent so the next boot resumes the same transfer
			// rather than falling back to NoAppToBoot.
			b.resumeStore.Store(makeResumeHint(server, path))
		}
	}
	b.reset.Request()
}

func (b *Bootloader) onCancelBoot() {
	if b.state == BootDelay {
		b.state = BootCancelled
	}
}

func (b *Bootloader) currentAppInfo() (version [2]uint8, vcsRevision uint32, imageCRC uint64, ok bool) {
	if !b.appInfoValid {
		return version, 0, 0, false
	}
	return [2]uint8{b.appInfo.VersionMajor, b.appInfo.VersionMinor}, b.appInfo.VCSRevision, b.appInfo.ImageCRC, true
}

func (b *Bootloader) nodeStatus() (mode, health uint8, vssc uint16) {
	return nodeMode(b.state), nodeHealth(b.state), 0
}
