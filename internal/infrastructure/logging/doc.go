// Package logging provides structured logging for Gray Logic Vacuum Zones.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same default fields (service, version) and format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	coordLogger := logger.Component("coordinator")
//	coordLogger.Warn("start rejected", "master_id", id, "room_id", room)
//
// Never log JWT secrets, bearer tokens or MQTT passwords.
package logging
