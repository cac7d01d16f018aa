package logic

import "math"

// SoilRawMax is the top of the raw soil-moisture domain (10-bit ADC).
const SoilRawMax = 1023

// MoisturePercent inverts a raw soil reading into a 0..100 percentage.
// Raw 0 is wettest (100%), raw 1023 is driest (0%).
// Out-of-domain values are clamped.
func MoisturePercent(raw int) int {
	if raw < 0 {
		raw = 0
	}
	if raw > SoilRawMax {
		raw = SoilRawMax
	}
	return 100 - int(math.Round(float64(raw)*100/SoilRawMax))
}

// Action is the outcome of an evaluator for the current tick.
type Action int

const (
	ActionNone Action = iota
	ActionTrigger
	ActionDeactivate
)

func (a Action) String() string {
	switch a {
	case ActionTrigger:
		return "trigger"
	case ActionDeactivate:
		return "deactivate"
	default:
		return "none"
	}
}

// EvaluateThreshold is a bang-bang controller with no dead-band:
// below threshold while idle starts the pump, at or above threshold while
// active stops it.
func EvaluateThreshold(percent, threshold int, active bool) Action {
	if percent < threshold && !active {
		return ActionTrigger
	}
	if percent >= threshold && active {
		return ActionDeactivate
	}
	return ActionNone
}
