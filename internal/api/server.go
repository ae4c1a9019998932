package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/opensource-finance/fraudwatch/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. m may be nil, in which case /metrics is not served.
func NewServer(cfg domain.ServerConfig, deps Deps, m *metrics.Metrics) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(m))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/transactions", handler.RecordTransaction)
		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Post("/transactions/{id}/evaluate", handler.EvaluateTransaction)
		r.Get("/assessments/{txId}", handler.GetAssessment)

		r.Get("/rules", handler.ListRules)
		r.Get("/rules/snapshot", handler.RuleSnapshot)
		r.Get("/rules/{id}", handler.GetRule)

		r.Get("/blacklist", handler.ListBlacklist)
		r.Get("/blacklist/thresholds", handler.GetThresholds)

		r.Get("/recommendations", handler.ListRecommendations)
		r.Get("/recommendations/{recipientId}", handler.GetRecommendation)

		// Administrator configuration
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/rules", handler.SaveRule)
			r.Delete("/rules/{id}", handler.DisableRule)
			r.Put("/blacklist/thresholds", handler.SaveThresholds)
		})

		// Blacklist mutations by operators
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin, RoleAnalyst))
			r.Post("/recommendations/{recipientId}/promote", handler.Promote)
			r.Post("/blacklist", handler.AddBlacklist)
			r.Delete("/blacklist/{id}", handler.RemoveBlacklist)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
