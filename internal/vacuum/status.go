package vacuum

import "strings"

// roborockStates names the numeric state codes Roborock firmware reports.
var roborockStates = map[int]string{
	0:   "unknown",
	1:   "starting",
	2:   "charger_disconnected",
	3:   "idle",
	4:   "remote_control_active",
	5:   "cleaning",
	6:   "returning_home",
	7:   "manual_mode",
	8:   "charging",
	9:   "charging_problem",
	10:  "paused",
	11:  "spot_cleaning",
	12:  "error",
	13:  "shutting_down",
	14:  "updating",
	15:  "docking",
	16:  "going_to_target",
	17:  "zoned_cleaning",
	18:  "segment_cleaning",
	22:  "emptying_the_bin",
	23:  "washing_the_mop",
	26:  "going_to_wash_the_mop",
	29:  "mapping",
	100: "charging_complete",
	101: "device_offline",
}

// coarseStatus folds host and firmware state names into coarse statuses.
var coarseStatus = map[string]Status{
	"idle":                 StatusIdle,
	"starting":             StatusIdle,
	"charger_disconnected": StatusIdle,
	"cleaning":             StatusCleaning,
	"spot_cleaning":        StatusCleaning,
	"zoned_cleaning":       StatusCleaning,
	"segment_cleaning":     StatusCleaning,
	"room_cleaning":        StatusCleaning,
	"mapping":              StatusCleaning,
	"returning":            StatusReturning,
	"returning_home":       StatusReturning,
	"docking":              StatusReturning,
	"docked":               StatusDocked,
	"charging":             StatusDocked,
	"charging_complete":    StatusDocked,
	"emptying_the_bin":     StatusDocked,
	"washing_the_mop":      StatusDocked,
	"paused":               StatusPaused,
	"error":                StatusError,
	"charging_problem":     StatusError,
}

// ParseStatus normalises a reported status name. Unrecognised names map
// to StatusUnknown.
func ParseStatus(raw string) Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if s, ok := coarseStatus[key]; ok {
		return s
	}
	return StatusUnknown
}

// StatusFromCode normalises a numeric Roborock state code.
func StatusFromCode(code int) Status {
	name, ok := roborockStates[code]
	if !ok {
		return StatusUnknown
	}
	return ParseStatus(name)
}

// StateName returns the firmware name for a Roborock state code.
func StateName(code int) string {
	if name, ok := roborockStates[code]; ok {
		return name
	}
	return "unknown"
}
