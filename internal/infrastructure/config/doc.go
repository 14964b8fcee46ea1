// Package config handles loading and validating Gray Logic Vacuum Zones configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token, JWT secret) should be set
// via environment variables and the config file kept at 0600.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Vacuum.DebounceWindow)
package config
