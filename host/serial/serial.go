package serial

import (
	"io"
)

// Port is an open connection to the follower's monitor output.
// Implementations: native serial (github.com/tarm/serial) and in-memory
// pipes in tests.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate, ignored by USB CDC
	Baud int

	// Read timeout in milliseconds (0 = blocking). A timed out read
	// returns (0, nil).
	ReadTimeout int
}

// DefaultConfig returns the configuration for the firmware's USB port
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
