package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level envelope served at /index.json.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

type StatusInner struct {
	Device        string        `json:"device"`
	Mode          string        `json:"mode"`
	Schedule      []string      `json:"schedule"`
	NextRun       string        `json:"next_run,omitempty"`
	Relay         RelayJSON     `json:"relay"`
	Climate       *ClimateJSON  `json:"climate,omitempty"`
	Moisture      *MoistureJSON `json:"moisture,omitempty"`
	LastEvent     *EventJSON    `json:"last_event,omitempty"`
	LastPoll      string        `json:"last_poll,omitempty"`
	Counts        CountsJSON    `json:"counts"`
	ClockOffsetMs int64         `json:"clock_offset_ms"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

type RelayJSON struct {
	Active bool   `json:"active"`
	RunID  string `json:"run_id,omitempty"`
}

type ClimateJSON struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	At          string  `json:"at"`
}

type MoistureJSON struct {
	Percent int    `json:"percent"`
	At      string `json:"at"`
}

type EventJSON struct {
	Event     string `json:"event"`
	Reason    string `json:"reason"`
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
}

type CountsJSON struct {
	TelemetryOK     int `json:"telemetry_ok"`
	TelemetryFailed int `json:"telemetry_failed"`
	PollOK          int `json:"poll_ok"`
	PollFailed      int `json:"poll_failed"`
	PumpOn          int `json:"pump_on"`
	PumpOff         int `json:"pump_off"`
}

type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

type ConfigJSON struct {
	ClimateURL  string `json:"climate_url"`
	SoilURL     string `json:"soil_url"`
	ModeURL     string `json:"mode_url"`
	TelemetryMs int64  `json:"telemetry_ms"`
	PollMs      int64  `json:"poll_ms"`
	MaxOnMs     int64  `json:"max_on_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Threshold   int    `json:"threshold"`
	HTTPAddr    string `json:"http_addr"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Device:        snap.Config.DeviceID,
		Mode:          snap.Mode.Mode.String(),
		Schedule:      snap.Mode.Schedule.Strings(),
		NextRun:       rfc3339(snap.NextRun),
		Relay:         RelayJSON{Active: snap.Relay.Active, RunID: snap.Relay.RunID},
		LastPoll:      rfc3339(snap.LastPoll),
		Counts:        CountsJSON(snap.Counts),
		ClockOffsetMs: snap.ClockOffset.Milliseconds(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     rfc3339(snap.StartTime),
		Timestamp:     rfc3339(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			ClimateURL:  snap.Config.ClimateURL,
			SoilURL:     snap.Config.SoilURL,
			ModeURL:     snap.Config.ModeURL,
			TelemetryMs: snap.Config.TelemetryMs,
			PollMs:      snap.Config.PollMs,
			MaxOnMs:     snap.Config.MaxOnMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Threshold:   snap.Config.Threshold,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if c := snap.Climate; c != nil {
		inner.Climate = &ClimateJSON{Temperature: c.Temperature, Humidity: c.Humidity, At: rfc3339(c.At)}
	}
	if m := snap.Moisture; m != nil {
		inner.Moisture = &MoistureJSON{Percent: m.Percent, At: rfc3339(m.At)}
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &EventJSON{
			Event:     string(e.Type),
			Reason:    string(e.Reason),
			RunID:     e.RunID,
			Timestamp: rfc3339(e.Timestamp),
		}
	}
	return inner
}

// FormatJSON returns the indented status document for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// Compact returns the status inner object for embedding in MQTT events.
func Compact(snap Snapshot) json.RawMessage {
	data, _ := json.Marshal(buildInner(snap))
	return data
}
