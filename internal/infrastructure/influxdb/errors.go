package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// The service then runs without telemetry.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrUnreachable means the server did not answer the startup ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned by HealthCheck once Close has run.
	ErrClosed = errors.New("influxdb: client closed")

	// ErrWritesFailing is returned by HealthCheck while batched writes of
	// vacuum points are being rejected.
	ErrWritesFailing = errors.New("influxdb: writes failing")
)
