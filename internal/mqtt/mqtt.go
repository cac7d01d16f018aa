// Package mqtt publishes pump transitions and lifecycle events.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// TopicPrefix is the root of every topic this device publishes to.
const TopicPrefix = "irrigation"

// Lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// Topics holds the per-device topic names.
type Topics struct {
	Events string
	System string
}

// TopicsFor builds the topic names for a device ID.
func TopicsFor(deviceID string) Topics {
	return Topics{
		Events: fmt.Sprintf("%s/%s/pump/events", TopicPrefix, deviceID),
		System: fmt.Sprintf("%s/%s/system", TopicPrefix, deviceID),
	}
}

// Publisher publishes events to MQTT. Errors are never fatal to the caller.
type Publisher interface {
	Publish(event logic.PumpEvent) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (STARTUP, HEARTBEAT, SHUTDOWN, ...).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	// Reason is the signal name on SHUTDOWN.
	Reason string
	// Status, if set, is embedded verbatim as the "status" field.
	Status   json.RawMessage
	Retained bool
}

type pumpPayload struct {
	Pump pumpFields `json:"pump"`
}

type pumpFields struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason"`
	RunID     string `json:"run_id"`
	OnForMs   int64  `json:"on_for_ms,omitempty"`
	Moisture  *int   `json:"moisture,omitempty"`
}

// FormatPayload renders a pump event as JSON.
func FormatPayload(event logic.PumpEvent) ([]byte, error) {
	f := pumpFields{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Reason:    string(event.Reason),
		RunID:     event.RunID,
		OnForMs:   event.OnFor.Milliseconds(),
	}
	if event.Moisture >= 0 {
		m := event.Moisture
		f.Moisture = &m
	}
	return json.Marshal(pumpPayload{Pump: f})
}

type systemPayload struct {
	System systemFields `json:"system"`
}

type systemFields struct {
	Timestamp string          `json:"timestamp"`
	Event     string          `json:"event"`
	Reason    string          `json:"reason,omitempty"`
	Status    json.RawMessage `json:"status,omitempty"`
}

// FormatSystemPayload renders a lifecycle event as JSON.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(systemPayload{System: systemFields{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
		Status:    event.Status,
	}})
}
