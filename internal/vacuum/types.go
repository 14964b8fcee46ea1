package vacuum

import (
	"strconv"
	"strings"
	"time"
)

// MasterID identifies a physical vacuum, e.g. "vacuum.roborock_s7".
type MasterID string

// Slug returns the part of the id after the last '.', used in unique ids.
func (m MasterID) Slug() string {
	s := string(m)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// RoomID is a segment identifier, unique within its master's map.
type RoomID int

func (r RoomID) String() string {
	return strconv.Itoa(int(r))
}

// Status is the coarse operational state of a master.
type Status string

// Coarse statuses. StatusUnknown is also the sentinel for unresolved masters.
const (
	StatusIdle      Status = "idle"
	StatusCleaning  Status = "cleaning"
	StatusReturning Status = "returning"
	StatusDocked    Status = "docked"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

// MasterState is a single fresh read of a master's state.
type MasterState struct {
	Status Status `json:"status"`

	// Raw is the status string as reported by the bridge before normalisation.
	Raw string `json:"raw,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Activity is the state a virtual room displays.
type Activity string

// Room display activities.
const (
	ActivityIdle      Activity = "idle"
	ActivityCleaning  Activity = "cleaning"
	ActivityReturning Activity = "returning"
	ActivityDocked    Activity = "docked"
	ActivityPaused    Activity = "paused"
	ActivityError     Activity = "error"
)

// ActivityFor maps a master status onto the display activity shared by all
// of its rooms. Unknown and idle both display as idle.
func ActivityFor(s Status) Activity {
	switch s {
	case StatusCleaning:
		return ActivityCleaning
	case StatusReturning:
		return ActivityReturning
	case StatusDocked:
		return ActivityDocked
	case StatusPaused:
		return ActivityPaused
	case StatusError:
		return ActivityError
	default:
		return ActivityIdle
	}
}

// Feature is a capability flag a virtual room advertises.
type Feature uint8

// Supported features.
const (
	FeatureStart Feature = 1 << iota
	FeatureStop
	FeatureReturnHome
)

// Has reports whether f includes all flags in other.
func (f Feature) Has(other Feature) bool {
	return f&other == other
}

// Names lists the flag names in f, for API output.
func (f Feature) Names() []string {
	var names []string
	if f.Has(FeatureStart) {
		names = append(names, "start")
	}
	if f.Has(FeatureStop) {
		names = append(names, "stop")
	}
	if f.Has(FeatureReturnHome) {
		names = append(names, "return_home")
	}
	return names
}
