// Package server provides the HTTP server and routing for optionseller.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/optionseller/internal/di"
	portfoliohandlers "github.com/aristath/optionseller/internal/modules/portfolio/handlers"
	riskhandlers "github.com/aristath/optionseller/internal/modules/risk/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Version   string
	Container *di.Container    // DI container with all services
	Jobs      *di.JobInstances // Registered jobs for manual triggering
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	version        string
	started        time.Time
	container      *di.Container
	systemHandlers *SystemHandlers
	screenHandlers *ScreenHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		version:   cfg.Version,
		started:   time.Now(),
		container: cfg.Container,
	}

	jobs := cfg.Jobs
	if jobs == nil {
		jobs = &di.JobInstances{}
	}
	s.systemHandlers = NewSystemHandlers(cfg.Container, jobs, cfg.Version, s.started, cfg.Log)
	s.screenHandlers = NewScreenHandlers(
		cfg.Container.RecommenderService,
		cfg.Container.ReportRepo,
		cfg.Log,
	)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              portAddr(cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // screening runs can be slow on cold caches
		IdleTimeout:       120 * time.Second,
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

	// Metrics, labelled by route pattern
	if s.container.Metrics != nil {
		s.router.Use(s.container.Metrics.Middleware)
	}

	// Timeout
	s.router.Use(middleware.Timeout(90 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.container.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.container.Metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// System status and operations
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/backups", s.systemHandlers.HandleListBackups)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
		})

		// Screening
		s.screenHandlers.RegisterRoutes(r)

		// Positions and roll advice
		portfoliohandlers.NewHandler(s.container.PortfolioService, s.log).RegisterRoutes(r)

		// Sizing and portfolio risk
		riskhandlers.NewHandler(s.container.RiskManager, s.container.PortfolioService, s.log).RegisterRoutes(r)
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

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
