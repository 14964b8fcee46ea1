package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Vacuum Zones.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Security  SecurityConfig  `yaml:"security"`
	Vacuum    VacuumConfig    `yaml:"vacuum"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
//
// An empty secret disables API authentication, which is only suitable for
// installations where the API listens on a trusted network.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// VacuumConfig configures the per-room virtual vacuum coordinator.
type VacuumConfig struct {
	// DebounceWindow is the quiet period after the last room start request
	// before the batched segment clean is dispatched.
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// AckTimeout bounds how long a dispatch waits for the bridge acknowledgement.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// StateMaxAge is how long a master state is trusted without a fresh
	// state report or bridge heartbeat. Older states read as unknown.
	// Zero disables the bound.
	StateMaxAge time.Duration `yaml:"state_max_age"`

	// CommandSurface selects the device command used for segment cleaning:
	// "app_segment_clean" (Roborock miio) or "segment_clean" (dedicated verb).
	CommandSurface string `yaml:"command_surface"`

	// Repeats is the number of cleaning passes per segment.
	Repeats int `yaml:"repeats"`

	// NamePrefix is prepended to the room name to form the entity name.
	NamePrefix string `yaml:"name_prefix"`

	Masters []MasterConfig `yaml:"masters"`

	// MainVacuum and MasterVacuum are single-master shorthands kept for
	// configurations written before multi-master support.
	MainVacuum   string `yaml:"main_vacuum"`
	MasterVacuum string `yaml:"master_vacuum"`
}

// MasterConfig describes one physical vacuum and where its rooms come from.
type MasterConfig struct {
	ID string `yaml:"id"`

	// MapSource names the map entity whose retained payload carries the
	// "rooms" attribute. Defaults to the master ID slug.
	MapSource string `yaml:"map_source"`

	// Rooms is a static room list used when the map source has none.
	Rooms map[int]string `yaml:"rooms"`
}

// Supported command surfaces.
const (
	CommandSurfaceAppSegmentClean = "app_segment_clean"
	CommandSurfaceSegmentClean    = "segment_clean"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_VACUUM_DEBOUNCE_WINDOW
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Vacuum.resolveLegacyMaster()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/vacuumzones.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-vacuumzones",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Vacuum: VacuumConfig{
			DebounceWindow: 2 * time.Second,
			AckTimeout:     10 * time.Second,
			StateMaxAge:    30 * time.Minute,
			CommandSurface: CommandSurfaceAppSegmentClean,
			Repeats:        1,
			NamePrefix:     "Clean",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Vacuum
	if v := os.Getenv("GRAYLOGIC_VACUUM_DEBOUNCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Vacuum.DebounceWindow = d
		}
	}
	if v := os.Getenv("GRAYLOGIC_VACUUM_STATE_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Vacuum.StateMaxAge = d
		}
	}
	if v := os.Getenv("GRAYLOGIC_VACUUM_MASTER"); v != "" {
		cfg.Vacuum.MasterVacuum = v
	}
}

// resolveLegacyMaster turns main_vacuum / master_vacuum into a masters entry
// when no explicit masters list is configured.
func (v *VacuumConfig) resolveLegacyMaster() {
	if len(v.Masters) > 0 {
		return
	}
	id := v.MainVacuum
	if id == "" {
		id = v.MasterVacuum
	}
	if id != "" {
		v.Masters = []MasterConfig{{ID: id}}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A configured secret must be long enough to resist brute force.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	errs = append(errs, c.Vacuum.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (v *VacuumConfig) validate() []string {
	var errs []string

	if v.DebounceWindow <= 0 {
		errs = append(errs, "vacuum.debounce_window must be positive")
	}
	if v.AckTimeout <= 0 {
		errs = append(errs, "vacuum.ack_timeout must be positive")
	}
	if v.StateMaxAge < 0 {
		errs = append(errs, "vacuum.state_max_age must not be negative")
	}
	switch v.CommandSurface {
	case CommandSurfaceAppSegmentClean, CommandSurfaceSegmentClean:
	default:
		errs = append(errs, fmt.Sprintf("vacuum.command_surface %q is not supported", v.CommandSurface))
	}
	if v.Repeats < 1 {
		errs = append(errs, "vacuum.repeats must be at least 1")
	}

	seen := make(map[string]bool, len(v.Masters))
	for i, m := range v.Masters {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("vacuum.masters[%d].id is required", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("vacuum.masters[%d].id %q is duplicated", i, m.ID))
		}
		seen[m.ID] = true
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetAccessTokenTTL returns the JWT access token lifetime.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
