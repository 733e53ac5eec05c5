package bootloader

import (
	"time"

	"github.com/Sleuek/kocherga/internal/crc"
)

// Default configuration values. The reactor's retry count and boot-delay
// are treated as ordinary, overridable configuration rather than fixed
// constants.
const (
	DefaultBootDelay       = 2 * time.Second
	DefaultStallTimeout    = 1 * time.Second
	DefaultMaxStallRetries = 3
	DefaultReadRequestSize = 256
	DefaultHeartbeatPeriod = 1 * time.Second
	DefaultBlockSize       = 256
)

// Config bundles every tunable the bootloader core needs at construction.
// Zero-valued fields are filled with the Default* constants by New.
type Config struct {
	// RegionStart and RegionSize describe the image-relative ROM window the
	// application is expected to occupy.
	RegionStart uint32
	RegionSize  uint32

	BootDelay       time.Duration
	StallTimeout    time.Duration
	MaxStallRetries int
	ReadRequestSize uint32
	HeartbeatPeriod time.Duration

	// BlockSize is the host's minimum flash program unit; the image writer
	// buffers to this size before flushing.
	BlockSize int
}

// ResumeRegionSize reports the exact VolatileRegion size New requires for
// its cross-reset resume hint, so a host can size its backing storage (RAM
// section, file, etc.) correctly before construction.
func ResumeRegionSize() int {
	return resumeHintSize + crc.Size64
}

func (c Config) withDefaults() Config {
	if c.BootDelay == 0 {
		c.BootDelay = DefaultBootDelay
	}
	if c.StallTimeout == 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	if c.MaxStallRetries == 0 {
		c.MaxStallRetries = DefaultMaxStallRetries
	}
	if c.ReadRequestSize == 0 {
		c.ReadRequestSize = DefaultReadRequestSize
	}
	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	return c
}
