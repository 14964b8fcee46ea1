package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/room"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RoomSyncer re-runs room discovery for one master.
type RoomSyncer interface {
	SyncMaster(ctx context.Context, spec room.MasterSpec) (int, error)
}

// ConnectionStatus reports whether a client is connected to its broker.
type ConnectionStatus interface {
	IsConnected() bool
}

// DBStatsProvider exposes connection pool statistics.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger

	Coordinator  *vacuum.Coordinator
	Rooms        *vacuum.RoomSet
	Masters      []room.MasterSpec
	Catalogue    *room.Registry                // optional: adds source and timestamps to rooms
	Syncer       RoomSyncer                    // optional: enables POST /masters/{id}/sync
	History      vacuum.HistoryRepository      // optional: enables GET /dispatches
	StateHistory vacuum.StateHistoryRepository // optional: enables GET /masters/{id}/history

	MQTT           ConnectionStatus         // optional
	DB             DBStatsProvider          // optional
	HealthChecks   map[string]HealthChecker // optional, keyed by component name
	MetricsHandler http.Handler             // optional: served at Metrics.Path

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	metCfg   config.MetricsConfig
	logger   *logging.Logger
	coord    *vacuum.Coordinator
	rooms    *vacuum.RoomSet
	masters  map[vacuum.MasterID]room.MasterSpec
	order    []vacuum.MasterID
	catalog  *room.Registry
	syncer   RoomSyncer
	history  vacuum.HistoryRepository
	states   vacuum.StateHistoryRepository
	mqtt     ConnectionStatus
	db       DBStatsProvider
	checks   map[string]HealthChecker
	promHTTP http.Handler
	tickets  *ticketStore

	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("vacuum coordinator is required")
	}
	if deps.Rooms == nil {
		return nil, fmt.Errorf("room set is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		metCfg:    deps.Metrics,
		logger:    deps.Logger,
		coord:     deps.Coordinator,
		rooms:     deps.Rooms,
		masters:   make(map[vacuum.MasterID]room.MasterSpec, len(deps.Masters)),
		catalog:   deps.Catalogue,
		syncer:    deps.Syncer,
		history:   deps.History,
		states:    deps.StateHistory,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		checks:    deps.HealthChecks,
		promHTTP:  deps.MetricsHandler,
		tickets:   newTicketStore(),
		version:   deps.Version,
		startTime: time.Now(),
	}
	for _, m := range deps.Masters {
		if _, dup := s.masters[m.ID]; dup {
			continue
		}
		s.masters[m.ID] = m
		s.order = append(s.order, m.ID)
	}

	// Use externally-provided hub if available (needed when the coordinator
	// and bridge broadcast to the hub before the server starts).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// authEnabled reports whether bearer tokens are required.
func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}
