// Package status provides a thread-safe view of the controller's state for
// the web page and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Config is the daemon configuration shown on the status page.
type Config struct {
	DeviceID    string
	ClimateURL  string
	SoilURL     string
	ModeURL     string
	TelemetryMs int64
	PollMs      int64
	MaxOnMs     int64
	HeartbeatMs int64
	Threshold   int
	Broker      string
	HTTPAddr    string
}

// Climate is the last valid temperature and humidity reading.
type Climate struct {
	Temperature float64
	Humidity    float64
	At          time.Time
}

// Moisture is the last valid soil reading.
type Moisture struct {
	Percent int
	At      time.Time
}

// Counts are cumulative since start.
type Counts struct {
	TelemetryOK     int
	TelemetryFailed int
	PollOK          int
	PollFailed      int
	PumpOn          int
	PumpOff         int
}

// Snapshot is a point-in-time copy of the tracked state.
type Snapshot struct {
	Mode          logic.ModeConfig
	Relay         logic.RelayState
	Climate       *Climate
	Moisture      *Moisture
	Counts        Counts
	LastPoll      time.Time
	NextRun       time.Time
	LastEvent     *logic.PumpEvent
	ClockOffset   time.Duration
	MQTTConnected bool
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the mutable state behind an RWMutex. The control loop
// writes; HTTP handlers read.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{snap: Snapshot{StartTime: startTime, Config: cfg}}
}

// SetMode records the applied mode config and the next scheduled run
// (zero when there is none).
func (t *Tracker) SetMode(cfg logic.ModeConfig, next time.Time) {
	sched := make(logic.Schedule, len(cfg.Schedule))
	copy(sched, cfg.Schedule)
	t.mu.Lock()
	t.snap.Mode = logic.ModeConfig{Mode: cfg.Mode, Schedule: sched}
	t.snap.NextRun = next
	t.mu.Unlock()
}

func (t *Tracker) SetRelay(state logic.RelayState) {
	t.mu.Lock()
	t.snap.Relay = state
	t.mu.Unlock()
}

func (t *Tracker) RecordClimate(c Climate) {
	t.mu.Lock()
	t.snap.Climate = &c
	t.mu.Unlock()
}

func (t *Tracker) RecordMoisture(m Moisture) {
	t.mu.Lock()
	t.snap.Moisture = &m
	t.mu.Unlock()
}

// RecordTelemetry counts one report attempt.
func (t *Tracker) RecordTelemetry(ok bool) {
	t.mu.Lock()
	if ok {
		t.snap.Counts.TelemetryOK++
	} else {
		t.snap.Counts.TelemetryFailed++
	}
	t.mu.Unlock()
}

// RecordPoll counts one mode poll attempt made at the given wall time.
func (t *Tracker) RecordPoll(ok bool, at time.Time) {
	t.mu.Lock()
	if ok {
		t.snap.Counts.PollOK++
	} else {
		t.snap.Counts.PollFailed++
	}
	t.snap.LastPoll = at
	t.mu.Unlock()
}

// RecordPumpEvent counts a relay transition and keeps it as the last event.
func (t *Tracker) RecordPumpEvent(ev logic.PumpEvent) {
	t.mu.Lock()
	switch ev.Type {
	case logic.EventPumpOn:
		t.snap.Counts.PumpOn++
	case logic.EventPumpOff:
		t.snap.Counts.PumpOff++
	}
	t.snap.LastEvent = &ev
	t.mu.Unlock()
}

func (t *Tracker) SetClockOffset(d time.Duration) {
	t.mu.Lock()
	t.snap.ClockOffset = d
	t.mu.Unlock()
}

func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a copy of the state with Now set to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
