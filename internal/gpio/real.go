//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPin drives a relay through the Linux GPIO character device.
type RealPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealPin requests pin as an output, initially Off.
// With activeLow set, logical On pulls the line low, which is how common
// opto-isolated relay boards are wired.
func NewRealPin(chipName string, pin int, activeLow bool) (*RealPin, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("irrigation-controller")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RealPin{chip: chip, line: line}, nil
}

// Set drives the relay line.
func (p *RealPin) Set(level Level) error {
	v := 0
	if level == On {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay %s: %w", level, err)
	}
	return nil
}

// Close drives the relay off and releases the line.
// The pump must never be left running after the process exits.
func (p *RealPin) Close() error {
	var errs []error

	if p.line != nil {
		if err := p.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive relay off: %w", err))
		}
		if err := p.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
