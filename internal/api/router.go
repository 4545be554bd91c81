package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/echo-control-core/internal/auth"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermDeviceRead)).Get("/ops", s.handleListOps)

			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)

				r.Route("/{handle}", func(r chi.Router) {
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermDeviceRead))
						r.Get("/", s.handleGetDevice)
						r.Get("/config", s.handleGetDeviceConfig)
						r.Get("/config/{key}", s.handleGetConfigValue)
					})
					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermDeviceOperate))
						r.Post("/commands", s.handleSendCommand)
						r.Post("/reconnect", s.handleReconnect)
					})
					r.With(s.requirePermission(auth.PermDeviceConfigure)).Put("/config/{key}", s.handleSetConfigValue)
				})
			})

			r.With(s.requirePermission(auth.PermHistoryRead)).Get("/history", s.handleListHistory)
			r.With(s.requirePermission(auth.PermCommandLogRead)).Get("/commands", s.handleListCommands)
		})
	})

	return r
}

// wsPath returns the configured WebSocket route.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": len(devices),
		"online":  online,
	})
}

// handleListOps returns every command op the runtime accepts.
func (s *Server) handleListOps(w http.ResponseWriter, _ *http.Request) {
	ops := supervisor.Ops()
	writeJSON(w, http.StatusOK, map[string]any{"ops": ops, "count": len(ops)})
}
