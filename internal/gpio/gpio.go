// Package gpio drives the pump relay output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Level is the logical relay level. The electrical level depends on
// whether the relay module is active-low.
type Level int

const (
	Off Level = iota
	On
)

func (l Level) String() string {
	if l == On {
		return "ON"
	}
	return "OFF"
}

// Pin is a single relay output.
type Pin interface {
	// Set drives the relay to the given logical level.
	Set(level Level) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// DefaultPinRelay is the BCM pin wired to the pump relay input.
const DefaultPinRelay = 17
