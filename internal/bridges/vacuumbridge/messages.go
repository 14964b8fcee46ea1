package vacuumbridge

import (
	"encoding/json"
	"time"
)

// MQTT message types exchanged with a vacuum bridge.

// CommandMessage is sent to the bridge to execute a device command.
// Topic: graylogic/command/vacuum/{master}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the master entity id, e.g. "vacuum.roborock_s7".
	DeviceID string `json:"device_id"`

	// Command is the device verb (e.g. "app_segment_clean", "app_stop").
	Command string `json:"command"`

	// Parameters are passed through to the device unchanged.
	// Examples:
	//   [16, 17]                          app_segment_clean
	//   [[16, 17], 2]                     app_segment_clean with repeats
	//   {"segments": [16, 17], "repeats": 1}  segment_clean
	Parameters any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was delivered to the device.
	AckAccepted AckStatus = "accepted"

	// AckQueued indicates the bridge accepted the command but the device
	// has not confirmed it yet.
	AckQueued AckStatus = "queued"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the device did not respond within the bridge's timeout.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent by the bridge to acknowledge a command.
// Topic: graylogic/ack/vacuum/{master}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`

	// Error contains details if status is "failed" or "timeout".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published by the bridge when the master's state changes.
// Topic: graylogic/state/vacuum/{master}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string      `json:"device_id"`
	Timestamp time.Time   `json:"timestamp"`
	State     VacuumState `json:"state"`
}

// VacuumState is the state body of a StateMessage.
// Bridges send a status name, a Roborock state code, or both; the name wins.
type VacuumState struct {
	Status    string `json:"status,omitempty"`
	StateCode *int   `json:"state_code,omitempty"`
	Battery   *int   `json:"battery,omitempty"`
	FanSpeed  string `json:"fan_speed,omitempty"`
}

// MapMessage is the retained map payload of a map source.
// Topic: graylogic/map/vacuum/{map_source}
//
// Rooms is kept raw: bridges send either an object keyed by segment id or
// a list of segment objects.
type MapMessage struct {
	Rooms json.RawMessage `json:"rooms,omitempty"`
}

// RoomStateMessage is republished for every virtual room when its master's
// state changes.
// Topic: graylogic/core/room/{unique_id}/state
// QoS: 1, Retained: Yes
type RoomStateMessage struct {
	UniqueID  string    `json:"unique_id"`
	Name      string    `json:"name"`
	MasterID  string    `json:"master_id"`
	RoomID    int       `json:"room_id"`
	State     string    `json:"state"`
	Features  []string  `json:"features"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is the operational status a bridge reports.
type HealthStatus string

// Bridge health statuses. HealthOffline is normally the bridge's LWT.
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage is the bridge's periodic heartbeat.
// Topic: graylogic/health/vacuum
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge    string       `json:"bridge"`
	Timestamp time.Time    `json:"timestamp"`
	Status    HealthStatus `json:"status"`
	Version   string       `json:"version,omitempty"`
}

// reachable reports whether master state from the bridge can be trusted.
func (s HealthStatus) reachable() bool {
	switch s {
	case HealthOffline, HealthStopping, HealthUnhealthy:
		return false
	default:
		return true
	}
}
