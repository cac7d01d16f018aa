// Package relay owns the pump relay state machine:
//
//	Idle --Trigger--> Active --(Deactivate | cutoff)--> Idle
//
// No other transitions exist. The controller is safe for concurrent use so
// the status page can read it while the control loop drives it.
package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

// DefaultMaxOn is the safety cutoff for a single activation.
const DefaultMaxOn = 60 * time.Second

// Controller drives a single relay pin.
type Controller struct {
	pin   gpio.Pin
	maxOn time.Duration
	wall  func() time.Time
	newID func() string

	mu    sync.Mutex
	state logic.RelayState
}

// New creates an Idle controller. wall stamps emitted events.
func New(pin gpio.Pin, maxOn time.Duration, wall func() time.Time) *Controller {
	if maxOn <= 0 {
		maxOn = DefaultMaxOn
	}
	if wall == nil {
		wall = time.Now
	}
	return &Controller{
		pin:   pin,
		maxOn: maxOn,
		wall:  wall,
		newID: uuid.NewString,
	}
}

// Init drives the pin off so the pump is never on at boot.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pin.Set(gpio.Off); err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	c.state = logic.RelayState{}
	return nil
}

// MaxOn returns the safety cutoff.
func (c *Controller) MaxOn() time.Duration {
	return c.maxOn
}

// Trigger turns the pump on. Calling it while Active is a no-op and keeps
// the original activation time. Returns the event for a real transition,
// nil otherwise. On a pin error the relay stays Idle.
func (c *Controller) Trigger(now time.Duration, reason logic.Reason) (*logic.PumpEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active {
		return nil, nil
	}
	if err := c.pin.Set(gpio.On); err != nil {
		return nil, fmt.Errorf("trigger relay: %w", err)
	}
	c.state = logic.RelayState{Active: true, Since: now, RunID: c.newID()}

	return &logic.PumpEvent{
		Timestamp: c.wall(),
		Type:      logic.EventPumpOn,
		Reason:    reason,
		RunID:     c.state.RunID,
		Moisture:  -1,
	}, nil
}

// Deactivate turns the pump off. Safe to call while Idle: the pin is still
// driven off but no event is returned. On a pin error the state is left
// unchanged so the next tick tries again.
func (c *Controller) Deactivate(now time.Duration, reason logic.Reason) (*logic.PumpEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deactivateLocked(now, reason)
}

// CheckCutoff deactivates the pump once it has been Active for MaxOn,
// whatever the operating mode.
func (c *Controller) CheckCutoff(now time.Duration) (*logic.PumpEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active || now-c.state.Since < c.maxOn {
		return nil, nil
	}
	return c.deactivateLocked(now, logic.ReasonCutoff)
}

func (c *Controller) deactivateLocked(now time.Duration, reason logic.Reason) (*logic.PumpEvent, error) {
	if err := c.pin.Set(gpio.Off); err != nil {
		return nil, fmt.Errorf("deactivate relay: %w", err)
	}
	prev := c.state
	c.state = logic.RelayState{}
	if !prev.Active {
		return nil, nil
	}
	return &logic.PumpEvent{
		Timestamp: c.wall(),
		Type:      logic.EventPumpOff,
		Reason:    reason,
		RunID:     prev.RunID,
		OnFor:     now - prev.Since,
		Moisture:  -1,
	}, nil
}

// State returns a copy of the current relay state.
func (c *Controller) State() logic.RelayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the pump is on.
func (c *Controller) Active() bool {
	return c.State().Active
}
