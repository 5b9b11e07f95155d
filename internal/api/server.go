// Package api provides the HTTP API server and handlers for Tangle.
package api

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tangleapp/tangle-server/internal/config"
	"github.com/tangleapp/tangle-server/internal/ratelimit"
	"github.com/tangleapp/tangle-server/internal/sse"
	"github.com/tangleapp/tangle-server/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store           *store.Store
	services        *Services
	sseHandler      *sse.Handler
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	authRateLimiter *ratelimit.KeyedRateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(cfg *config.Config, store *store.Store, services *Services, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	s := &Server{
		store:           store,
		services:        services,
		sseHandler:      sseHandler,
		router:          chi.NewRouter(),
		logger:          logger,
		authRateLimiter: NewAuthRateLimiter(20, time.Minute, 10),
	}

	s.setupMiddleware(cfg)

	humaConfig := huma.DefaultConfig(cfg.Server.Name, "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	RegisterErrorHandler()
	s.api = humachi.New(s.router, humaConfig)

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware(cfg *config.Config) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(authRateLimitMiddleware(s.authRateLimiter, s.logger))
	s.router.Use(authMiddleware(s.services.Auth))
}

// setupRoutes registers all API operations.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerTagRoutes()
	s.registerCaptureRoutes()

	// SSE stream sits outside huma; it holds the connection open.
	s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
}
