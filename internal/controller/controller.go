// Package controller runs one pass of the irrigation control loop.
//
// Each Tick, in order:
//  1. lets a syncing clock refresh its offset
//  2. uploads telemetry when its interval has passed
//  3. polls the operating mode when its interval has passed
//  4. enforces the relay's safety cutoff
//  5. runs the schedule or threshold evaluator for the current mode
//
// Nothing inside a tick is fatal. Failures are logged and the next tick
// carries on with whatever state is cached.
package controller

import (
	"context"
	"time"

	"github.com/sweeney/irrigation-controller/internal/clock"
	"github.com/sweeney/irrigation-controller/internal/logger"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/relay"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/telemetry"
)

// Default intervals.
const (
	DefaultTelemetryInterval = 10 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultThreshold         = 45
)

// Reporter uploads sensor readings.
type Reporter interface {
	ReportClimate(ctx context.Context) (*telemetry.ClimatePayload, error)
	ReportSoil(ctx context.Context) (*telemetry.SoilPayload, error)
}

// ModePoller fetches the operating mode.
type ModePoller interface {
	Poll(ctx context.Context) (logic.ModeConfig, error)
}

// Config holds the loop's tunables.
type Config struct {
	TelemetryInterval time.Duration
	PollInterval      time.Duration
	Threshold         int
	// Schedule is in effect until the first successful poll.
	Schedule logic.Schedule
}

// Deps are the collaborators the loop drives. Publisher may be nil.
type Deps struct {
	Clock     clock.Source
	Sensors   sensor.Reader
	Relay     *relay.Controller
	Reporter  Reporter
	Poller    ModePoller
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Log       *logger.Logger
}

// State is everything the loop remembers between ticks. It is owned by the
// loop goroutine.
type State struct {
	Mode      logic.ModeConfig
	Telemetry *logic.Timer
	Poll      *logic.Timer
}

// Controller dispatches the periodic activities.
type Controller struct {
	Deps
	threshold int
	state     State
}

// New creates a Controller in ModeUnset with both timers starting at
// elapsed zero.
func New(cfg Config, deps Deps) *Controller {
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = DefaultTelemetryInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}

	c := &Controller{
		Deps:      deps,
		threshold: cfg.Threshold,
		state: State{
			Mode:      logic.ModeConfig{Mode: logic.ModeUnset, Schedule: cfg.Schedule},
			Telemetry: logic.NewTimer(cfg.TelemetryInterval),
			Poll:      logic.NewTimer(cfg.PollInterval),
		},
	}
	c.Tracker.SetMode(c.state.Mode, time.Time{})
	return c
}

// State returns the current loop state.
func (c *Controller) State() State {
	return c.state
}

// Tick runs one pass of the loop.
func (c *Controller) Tick(ctx context.Context) {
	if s, ok := c.Clock.(clock.Syncer); ok {
		if err := s.Sync(ctx); err != nil {
			c.Log.Warnw("clock sync failed, keeping previous offset", "err", err)
		}
	}
	if o, ok := c.Clock.(interface{ Offset() time.Duration }); ok {
		c.Tracker.SetClockOffset(o.Offset())
	}

	now := c.Clock.Elapsed()

	if c.state.Telemetry.Due(now) {
		c.sendTelemetry(ctx)
		c.state.Telemetry.Mark(now)
	}

	if c.state.Poll.Due(now) {
		c.pollMode(ctx)
		c.state.Poll.Mark(now)
	}

	c.emit(c.Relay.CheckCutoff(now))

	switch c.state.Mode.Mode {
	case logic.ModeTimeBased:
		c.evaluateSchedule(now)
	case logic.ModeThresholdBased:
		c.evaluateThreshold(now)
	}

	c.Tracker.SetRelay(c.Relay.State())
	if cs, ok := c.Publisher.(mqtt.ConnectionStatus); ok {
		c.Tracker.SetMQTTConnected(cs.IsConnected())
	}
}

// Shutdown turns the pump off and reports the transition, if any.
func (c *Controller) Shutdown() error {
	ev, err := c.Relay.Deactivate(c.Clock.Elapsed(), logic.ReasonShutdown)
	c.emit(ev, err)
	c.Tracker.SetRelay(c.Relay.State())
	return err
}

func (c *Controller) sendTelemetry(ctx context.Context) {
	climate, err := c.Reporter.ReportClimate(ctx)
	if climate != nil {
		c.Tracker.RecordClimate(status.Climate{
			Temperature: climate.Temperature,
			Humidity:    climate.Humidity,
			At:          c.Clock.Now(),
		})
	}
	c.Tracker.RecordTelemetry(err == nil)
	if err != nil {
		c.Log.Warnw("climate report failed", "err", err)
	} else {
		c.Log.Debugw("climate reported", "temperature", climate.Temperature, "humidity", climate.Humidity)
	}

	soil, err := c.Reporter.ReportSoil(ctx)
	if soil != nil {
		c.Tracker.RecordMoisture(status.Moisture{Percent: soil.Moisture, At: c.Clock.Now()})
	}
	c.Tracker.RecordTelemetry(err == nil)
	if err != nil {
		c.Log.Warnw("soil report failed", "err", err)
	} else {
		c.Log.Debugw("soil reported", "moisture", soil.Moisture)
	}
}

func (c *Controller) pollMode(ctx context.Context) {
	cfg, err := c.Poller.Poll(ctx)
	c.Tracker.RecordPoll(err == nil, c.Clock.Now())
	if err != nil {
		c.Log.Warnw("mode poll failed, keeping cached mode", "mode", c.state.Mode.Mode, "err", err)
		return
	}

	if !cfg.Equal(c.state.Mode) {
		c.Log.Infow("mode changed",
			"from", c.state.Mode.Mode, "to", cfg.Mode,
			"schedule", cfg.Schedule.Strings())
	}
	c.state.Mode = cfg

	var next time.Time
	if cfg.Mode == logic.ModeTimeBased {
		next, _ = cfg.Schedule.Next(c.Clock.Now())
	}
	c.Tracker.SetMode(cfg, next)
}

func (c *Controller) evaluateSchedule(now time.Duration) {
	h, m := c.Clock.HourMinute()
	for _, slot := range c.state.Mode.Schedule {
		if slot.Matches(h, m) {
			c.emit(c.Relay.Trigger(now, logic.ReasonSchedule))
		}
	}
}

func (c *Controller) evaluateThreshold(now time.Duration) {
	raw, err := c.Sensors.SoilRaw()
	if err == nil {
		err = sensor.ValidateSoil(raw)
	}
	if err != nil {
		c.Log.Debugw("soil read failed, skipping threshold check", "err", err)
		return
	}

	pct := logic.MoisturePercent(raw)
	c.Tracker.RecordMoisture(status.Moisture{Percent: pct, At: c.Clock.Now()})

	var ev *logic.PumpEvent
	switch logic.EvaluateThreshold(pct, c.threshold, c.Relay.Active()) {
	case logic.ActionTrigger:
		ev, err = c.Relay.Trigger(now, logic.ReasonThreshold)
	case logic.ActionDeactivate:
		ev, err = c.Relay.Deactivate(now, logic.ReasonThreshold)
	default:
		return
	}
	if ev != nil {
		ev.Moisture = pct
	}
	c.emit(ev, err)
}

// emit logs, records and publishes a relay transition.
func (c *Controller) emit(ev *logic.PumpEvent, err error) {
	if err != nil {
		c.Log.Errorw("relay write failed, will retry next tick", "err", err)
		return
	}
	if ev == nil {
		return
	}

	c.Log.Infow("pump "+string(ev.Type),
		"reason", ev.Reason,
		"run_id", ev.RunID,
		"on_for", ev.OnFor,
		"moisture", ev.Moisture)
	c.Tracker.RecordPumpEvent(*ev)

	if c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(*ev); err != nil {
		c.Log.Warnw("mqtt publish failed", "event", ev.Type, "err", err)
	}
}
