// Gray Logic Vacuum Zones - per-room control for multi-room robot vacuums
//
// This is the main entry point for the vacuum zones service. Each room a
// vacuum knows about becomes its own control point; start requests arriving
// close together are batched into one segment clean per vacuum.
//
// The service talks to vacuums through the Gray Logic MQTT bridge contract
// (graylogic/{state,command,ack,map}/vacuum/...).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-vacuumzones/migrations"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/api"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/bridges/vacuumbridge"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/metrics"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/room"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Vacuum Zones",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if len(cfg.Vacuum.Masters) == 0 {
		log.Warn("no vacuum masters configured; set vacuum.masters or vacuum.main_vacuum")
	}

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, migrateErr := db.Migrate(ctx)
	if migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // informational only
	log.Info("database migrations complete", "schema_version", schema, "applied", applied)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional). The interfaces stay nil when disabled.
	var (
		influxClient      *influxdb.Client
		dispatchTelemetry vacuum.TelemetryWriter
		stateTelemetry    vacuumbridge.StateTelemetry
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		dispatchTelemetry = influxClient
		stateTelemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	recorder := metrics.New(version)

	// The hub exists before the server so the bridge and coordinator can
	// broadcast from their first event.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	masters := masterSpecs(cfg.Vacuum)
	stateHistory := vacuum.NewSQLiteStateHistoryRepository(db.DB)
	dispatchHistory := vacuum.NewSQLiteHistoryRepository(db.DB)

	bridge, err := vacuumbridge.NewBridge(vacuumbridge.Options{
		MQTTClient:   mqttClient,
		MapSources:   mapSources(cfg.Vacuum),
		StateHistory: stateHistory,
		Telemetry:    stateTelemetry,
		Events:       hub,
		StateMaxAge:  cfg.Vacuum.StateMaxAge,
		Logger:       log.Component("vacuumbridge"),
	})
	if err != nil {
		return fmt.Errorf("creating vacuum bridge: %w", err)
	}
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting vacuum bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping vacuum bridge")
		bridge.Stop()
	}()

	coord, err := newCoordinator(cfg.Vacuum, bridge, dispatchHistory, dispatchTelemetry, hub, recorder, log)
	if err != nil {
		return err
	}
	// Deferred after the bridge so it runs first: pending batches are
	// dropped and in-flight dispatches finish while MQTT is still up.
	defer func() {
		log.Info("closing vacuum coordinator")
		coord.Close()
	}()

	// Room catalogue and discovery
	catalogue := room.NewRegistry(room.NewSQLiteRepository(db.DB))
	catalogue.SetLogger(log.Component("room"))
	if refreshErr := catalogue.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading room catalogue: %w", refreshErr)
	}

	rooms := vacuum.NewRoomSet()
	bridge.States.SetRooms(rooms)

	syncer, err := room.NewSyncer(room.SyncerOptions{
		Source:      bridge.Maps,
		Registry:    catalogue,
		Rooms:       rooms,
		Coordinator: coord,
		NamePrefix:  cfg.Vacuum.NamePrefix,
		Logger:      log.Component("room"),
	})
	if err != nil {
		return fmt.Errorf("creating room syncer: %w", err)
	}
	if syncErr := syncer.SyncAll(ctx, masters); syncErr != nil {
		return fmt.Errorf("discovering rooms: %w", syncErr)
	}
	log.Info("rooms discovered", "masters", len(masters), "rooms", rooms.Len())

	// Map updates after startup re-run discovery for the masters they feed.
	bridge.Maps.SetOnUpdate(func(source string) {
		go resyncSource(ctx, syncer, bridge.Maps, masters, source, log)
	})

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		Metrics:        cfg.Metrics,
		Logger:         log.Component("api"),
		Coordinator:    coord,
		Rooms:          rooms,
		Masters:        masters,
		Catalogue:      catalogue,
		Syncer:         syncer,
		History:        dispatchHistory,
		StateHistory:   stateHistory,
		MQTT:           mqttClient,
		DB:             db,
		HealthChecks:   healthChecks(db, mqttClient, influxClient),
		MetricsHandler: recorder.Handler(),
		ExternalHub:    hub,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if cfg.Security.JWT.Secret == "" {
		log.Warn("API authentication disabled; set security.jwt.secret to require tokens")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"debounce_window", coord.Window(),
		"command_surface", cfg.Vacuum.CommandSurface,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, coordinator, bridge, InfluxDB (if enabled), MQTT, database.

	log.Info("Gray Logic Vacuum Zones stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newCoordinator builds the dispatcher and coordinator from the vacuum
// configuration. Commands go out through the bridge; state is read from its
// cache.
func newCoordinator(
	cfg config.VacuumConfig,
	bridge *vacuumbridge.Bridge,
	history vacuum.HistoryRepository,
	telemetry vacuum.TelemetryWriter,
	events vacuum.Broadcaster,
	recorder vacuum.Recorder,
	log *logging.Logger,
) (*vacuum.Coordinator, error) {
	commands, err := vacuum.NewCommandSet(cfg.CommandSurface, cfg.Repeats)
	if err != nil {
		return nil, fmt.Errorf("configuring commands: %w", err)
	}

	dispatcher, err := vacuum.NewDispatcher(vacuum.DispatcherDeps{
		Sender:    bridge.Commands,
		Commands:  commands,
		History:   history,
		Events:    events,
		Telemetry: telemetry,
		Metrics:   recorder,
		Logger:    log.Component("dispatcher"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	coord, err := vacuum.NewCoordinator(vacuum.CoordinatorDeps{
		States:     bridge.States,
		Dispatcher: dispatcher,
		Events:     events,
		Metrics:    recorder,
		Logger:     log.Component("coordinator"),
		Window:     cfg.DebounceWindow,
		AckTimeout: cfg.AckTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	return coord, nil
}

// masterSpecs converts configured masters into discovery specs.
func masterSpecs(cfg config.VacuumConfig) []room.MasterSpec {
	specs := make([]room.MasterSpec, 0, len(cfg.Masters))
	for _, m := range cfg.Masters {
		spec := room.MasterSpec{ID: vacuum.MasterID(m.ID)}
		if len(m.Rooms) > 0 {
			spec.Rooms = make(map[vacuum.RoomID]string, len(m.Rooms))
			for id, name := range m.Rooms {
				spec.Rooms[vacuum.RoomID(id)] = name
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

// mapSources returns the explicitly configured map source of each master.
func mapSources(cfg config.VacuumConfig) map[vacuum.MasterID]string {
	sources := make(map[vacuum.MasterID]string, len(cfg.Masters))
	for _, m := range cfg.Masters {
		if m.MapSource != "" {
			sources[vacuum.MasterID(m.ID)] = m.MapSource
		}
	}
	return sources
}

// sourceResolver reports which map source a master currently reads.
type sourceResolver interface {
	SourceFor(master vacuum.MasterID) (string, bool)
}

// resyncSource re-runs discovery for every master fed by source.
func resyncSource(ctx context.Context, syncer *room.Syncer, maps sourceResolver, masters []room.MasterSpec, source string, log *logging.Logger) {
	for _, spec := range affectedMasters(maps, masters, source) {
		n, err := syncer.SyncMaster(ctx, spec)
		if err != nil {
			log.Error("room resync failed", "master_id", spec.ID, "map_source", source, "error", err)
			continue
		}
		log.Info("rooms resynced", "master_id", spec.ID, "map_source", source, "rooms", n)
	}
}

// affectedMasters returns the masters whose rooms may come from source.
// Masters without a resolvable source are included: the new map may be
// the first one they can use.
func affectedMasters(maps sourceResolver, masters []room.MasterSpec, source string) []room.MasterSpec {
	var out []room.MasterSpec
	for _, spec := range masters {
		src, ok := maps.SourceFor(spec.ID)
		if !ok || src == source {
			out = append(out, spec)
		}
	}
	return out
}

// healthChecks returns the dependencies reported by /api/v1/health.
func healthChecks(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	return checks
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
