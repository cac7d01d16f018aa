// Package logic contains the pure rules of the irrigation controller.
// This package has NO I/O (no GPIO, HTTP, MQTT, OS or time.Sleep).
// Time is always injected as an elapsed duration or a time.Time parameter.
package logic

import (
	"strings"
	"time"
)

// Mode selects which evaluator runs on each tick.
type Mode int

const (
	ModeUnset Mode = iota
	ModeTimeBased
	ModeThresholdBased
)

// Wire values of the pumpMode field.
const (
	wireTimeBased = "timebased"
	wireThreshold = "threshold"
)

// ParseMode maps a server pumpMode value to a Mode.
// Anything unrecognised is ModeUnset, which never drives the pump.
func ParseMode(s string) Mode {
	switch strings.TrimSpace(s) {
	case wireTimeBased:
		return ModeTimeBased
	case wireThreshold:
		return ModeThresholdBased
	default:
		return ModeUnset
	}
}

func (m Mode) String() string {
	switch m {
	case ModeTimeBased:
		return wireTimeBased
	case ModeThresholdBased:
		return wireThreshold
	default:
		return "unset"
	}
}

// ModeConfig is the mode and schedule pair fetched from the server.
// It is always replaced as a whole, never field by field.
type ModeConfig struct {
	Mode     Mode
	Schedule Schedule
}

// Equal reports whether two configs select the same behaviour.
func (c ModeConfig) Equal(o ModeConfig) bool {
	if c.Mode != o.Mode || len(c.Schedule) != len(o.Schedule) {
		return false
	}
	for i := range c.Schedule {
		if c.Schedule[i] != o.Schedule[i] {
			return false
		}
	}
	return true
}

// EventType represents a pump transition.
type EventType string

const (
	EventPumpOn  EventType = "PUMP_ON"
	EventPumpOff EventType = "PUMP_OFF"
)

// Reason records what caused a pump transition.
type Reason string

const (
	ReasonSchedule  Reason = "schedule"
	ReasonThreshold Reason = "threshold"
	ReasonCutoff    Reason = "cutoff"
	ReasonShutdown  Reason = "shutdown"
)

// RelayState is a point-in-time view of the single pump relay.
type RelayState struct {
	Active bool
	// Since is the elapsed timestamp of the activation; zero when idle.
	Since time.Duration
	RunID string
}

// PumpEvent describes one relay transition.
type PumpEvent struct {
	Timestamp time.Time
	Type      EventType
	Reason    Reason
	RunID     string
	// OnFor is how long the pump ran; set on PUMP_OFF only.
	OnFor time.Duration
	// Moisture is the soil percentage that drove a threshold decision, or -1.
	Moisture int
}
