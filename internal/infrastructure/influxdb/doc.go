// Package influxdb records vacuum activity in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health checks.
//
// Two measurements are written:
//   - vacuum_dispatch: one point per command sent to a master, tagged by
//     master, command and outcome, with room count and ack latency
//   - vacuum_master_state: one point per coarse status transition
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDispatch("vacuum.roborock_s7", "app_segment_clean", "acknowledged", 2, 180*time.Millisecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are non-blocking; rejected batches are delivered to the SetOnError
// callback and make HealthCheck return ErrWritesFailing for two flush
// intervals. Connection and health check errors are returned directly.
package influxdb
