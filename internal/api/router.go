package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/auth"
)

// healthCheckTimeout bounds each component check run by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint (no auth, like /health)
	if s.metCfg.Enabled && s.promHTTP != nil {
		r.Handle(s.metricsPath(), s.promHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.With(s.requirePermission(auth.PermTokenIssue)).Post("/auth/token", s.handleIssueToken)

			r.With(s.requirePermission(auth.PermMasterRead)).Get("/system/metrics", s.handleSystemMetrics)

			r.Route("/masters", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermMasterRead)).Get("/", s.handleListMasters)

				r.Route("/{masterID}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermMasterRead)).Get("/", s.handleGetMaster)
					r.With(s.requirePermission(auth.PermRoomRead)).Get("/rooms", s.handleListMasterRooms)
					r.With(s.requirePermission(auth.PermHistoryRead)).Get("/history", s.handleMasterHistory)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermMasterOperate))
						r.Post("/stop", s.handleStopMaster)
						r.Post("/return_home", s.handleReturnHomeMaster)
						r.Post("/flush", s.handleFlushMaster)
					})

					r.With(s.requirePermission(auth.PermRoomSync)).Post("/sync", s.handleSyncMaster)
				})
			})

			r.Route("/rooms", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermRoomRead)).Get("/", s.handleListRooms)

				r.Route("/{roomUID}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermRoomRead)).Get("/", s.handleGetRoom)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermRoomOperate))
						r.Post("/start", s.handleStartRoom)
						r.Post("/stop", s.handleStopRoom)
						r.Post("/return_home", s.handleReturnHomeRoom)
					})
				})
			})

			r.With(s.requirePermission(auth.PermHistoryRead)).Get("/dispatches", s.handleListDispatches)
		})
	})

	return r
}

// metricsPath returns the configured scrape path.
func (s *Server) metricsPath() string {
	if s.metCfg.Path == "" {
		return "/metrics"
	}
	return s.metCfg.Path
}

// wsPath returns the configured WebSocket path below /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the server and its dependencies. Any failing
// dependency turns the status to "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
