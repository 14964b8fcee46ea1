package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDispatch    = "vacuum_dispatch"
	MeasurementMasterState = "vacuum_master_state"
)

// WriteDispatch records one command sent to a master.
//
// Parameters:
//   - master: Master entity id (e.g., "vacuum.roborock_s7")
//   - command: Device verb (e.g., "app_segment_clean")
//   - status: "acknowledged" or "failed"
//   - rooms: Number of rooms the command carried (0 for stop/return home)
//   - latency: Time from publish to acknowledgement or failure
func (c *Client) WriteDispatch(master, command, status string, rooms int, latency time.Duration) {
	if !c.writable() {
		return
	}
	c.writeAPI.WritePoint(newDispatchPoint(master, command, status, rooms, latency, time.Now()))
}

// WriteMasterState records a change of a master's coarse status.
// The numeric active field is 1 while the master is cleaning or returning,
// which makes cleaning time easy to integrate.
func (c *Client) WriteMasterState(master, status, raw string) {
	if !c.writable() {
		return
	}
	c.writeAPI.WritePoint(newMasterStatePoint(master, status, raw, time.Now()))
}

func newDispatchPoint(master, command, status string, rooms int, latency time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDispatch,
		map[string]string{
			"master_id": master,
			"command":   command,
			"status":    status,
		},
		map[string]any{
			"rooms":      rooms,
			"latency_ms": latency.Milliseconds(),
		},
		ts,
	)
}

func newMasterStatePoint(master, status, raw string, ts time.Time) *write.Point {
	active := 0
	if status == "cleaning" || status == "returning" {
		active = 1
	}
	fields := map[string]any{"active": active}
	if raw != "" {
		fields["raw"] = raw
	}
	return write.NewPoint(
		MeasurementMasterState,
		map[string]string{
			"master_id": master,
			"status":    status,
		},
		fields,
		ts,
	)
}
