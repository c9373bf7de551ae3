package serial

import (
	"fmt"
	"io"
	"strings"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (github.com/tarm/serial or go.bug.st/serial)
// - A WebSocket bridge to a remote serial port
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush drops any stale buffered input
	Flush() error
}

// Driver selects the native serial implementation
type Driver string

const (
	DriverTarm  Driver = "tarm"
	DriverBugst Driver = "bugst"
)

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3") or a ws:// / wss:// URL
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int

	// Native implementation; empty means DriverTarm
	Driver Driver

	// WebSocket bridge credentials (HTTP Basic auth)
	Username      string
	Password      string
	SkipSSLVerify bool
}

// DefaultConfig returns a default configuration for the phase PWM board
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
		Driver:      DriverTarm,
	}
}

// IsWebSocket reports whether the device names a WebSocket bridge
func (c *Config) IsWebSocket() bool {
	return strings.HasPrefix(c.Device, "ws://") || strings.HasPrefix(c.Device, "wss://")
}

// Open opens the port the config describes
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("no device specified")
	}

	if cfg.IsWebSocket() {
		return OpenWebSocket(cfg.Device, cfg.Username, cfg.Password, cfg.SkipSSLVerify)
	}

	switch cfg.Driver {
	case DriverTarm, "":
		return openTarm(cfg)
	case DriverBugst:
		return openBugst(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}
