// Package server provides the HTTP server and routing for the ledger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/ledger/internal/auth"
	"github.com/aristath/ledger/internal/di"
	aggregationhandlers "github.com/aristath/ledger/internal/modules/aggregation/handlers"
	audithandlers "github.com/aristath/ledger/internal/modules/audit/handlers"
	cashflowshandlers "github.com/aristath/ledger/internal/modules/cash_flows/handlers"
	portfoliohandlers "github.com/aristath/ledger/internal/modules/portfolio/handlers"
	tradinghandlers "github.com/aristath/ledger/internal/modules/trading/handlers"
	"github.com/aristath/ledger/internal/scheduler"
	"github.com/aristath/ledger/internal/utils"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Container *di.Container
	Jobs      []scheduler.Job // exposed for manual triggering
	DataDir   string
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	container *di.Container
	system    *SystemHandlers
	port      int
	log       zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		container: cfg.Container,
		port:      cfg.Port,
		log:       cfg.Log.With().Str("component", "server").Logger(),
	}
	s.system = NewSystemHandlers(cfg.DataDir, cfg.Container.Databases(), cfg.Container.EventBus, cfg.Jobs, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open; API routes carry their own timeout
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderUserID, auth.HeaderRole},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", c.Metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Long-lived event streams, outside the request timeout
		r.Get("/events/stream", NewEventsStreamHandler(c.EventBus, s.log).ServeHTTP)
		r.Get("/events/ws", NewEventsWebSocketHandler(c.EventBus, s.log).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(auth.RequireAdmin(s.log))

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.system.HandleSystemStatus)
				r.Get("/jobs", s.system.HandleListJobs)
				r.Post("/jobs/{name}", s.system.HandleTriggerJob)
			})

			portfoliohandlers.NewHandler(c.PortfolioService, s.log).RegisterRoutes(r)
			tradinghandlers.NewTradingHandlers(c.TradeSettlement, s.log).RegisterRoutes(r)
			cashflowshandlers.NewHandler(c.CashSettlement, s.log).RegisterRoutes(r)
			aggregationhandlers.NewHandler(c.AggregationService, s.log).RegisterRoutes(r)
			audithandlers.NewHandler(c.AuditRepo, s.log).RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth reports whether the ledger database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.container.LedgerDB.QuickCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"}, s.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, s.log)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		event := s.log.Info()
		if ww.Status() >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
