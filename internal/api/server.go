package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/psv-academy/internal/academy"
	"github.com/terra-clan/psv-academy/internal/config"
	"github.com/terra-clan/psv-academy/internal/events"
	"github.com/terra-clan/psv-academy/internal/services"
	"github.com/terra-clan/psv-academy/internal/storage"
)

// Permissions checked on API-key routes
const (
	PermGrade       = "grading:write"
	PermCatalogRead = "catalog:read"
	PermProfileRead = "profiles:read"
	PermProfileEdit = "profiles:write"
	PermFeedRead    = "feed:read"
)

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	academy  academy.Manager
	hub      *events.Hub
	registry *services.Registry
	apiKeys  *AuthMiddleware
	learners *LearnerAuth
}

// NewServer creates a new API server. API-key auth is skipped when disabled in authCfg;
// learner routes are mounted only when a JWT secret is configured.
func NewServer(
	cfg config.ServerConfig,
	authCfg config.AuthConfig,
	manager academy.Manager,
	repo storage.Repository,
	hub *events.Hub,
	registry *services.Registry,
) *Server {
	s := &Server{
		config:   cfg,
		academy:  manager,
		hub:      hub,
		registry: registry,
	}
	if authCfg.APIKeysEnabled {
		s.apiKeys = NewAuthMiddleware(repo)
	}
	if authCfg.JWTSecret != "" {
		s.learners = NewLearnerAuth(authCfg.JWTSecret, authCfg.JWTIssuer)
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// Integration routes, authenticated by API key
		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)

			// Long-lived websocket, no request timeout
			r.With(s.permission(PermFeedRead)).Get("/feed", s.handleFeed)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))

				r.With(s.permission(PermGrade)).Post("/grade", s.handleGrade)
				r.With(s.permission(PermProfileRead)).Get("/leaderboard", s.handleLeaderboard)
				r.With(s.permission(PermProfileRead)).Get("/attempts/{attemptId}", s.handleGetAttempt)

				// Catalogue
				r.Route("/tracks", func(r chi.Router) {
					r.With(s.permission(PermCatalogRead)).Get("/", s.handleListTracks)
					r.With(s.permission(PermCatalogRead)).Get("/{trackId}", s.handleGetTrack)
				})
				r.Route("/scenarios", func(r chi.Router) {
					r.With(s.permission(PermCatalogRead)).Get("/", s.handleListScenarios)
					r.With(s.permission(PermCatalogRead)).Get("/{scenarioId}", s.handleGetScenario)
				})

				// Profiles
				r.Route("/profiles/{id}", func(r chi.Router) {
					r.With(s.permission(PermProfileRead)).Get("/", s.handleGetProfile)
					r.With(s.permission(PermProfileEdit)).Delete("/", s.handleResetProfile)
					r.With(s.permission(PermProfileRead)).Get("/attempts", s.handleListAttempts)
					r.With(s.permission(PermProfileEdit)).Post("/attempts", s.handleSubmit)
					r.With(s.permission(PermProfileRead)).Get("/drafts/{scenarioId}", s.handleGetDraft)
					r.With(s.permission(PermProfileEdit)).Put("/drafts/{scenarioId}", s.handleSaveDraft)
					r.With(s.permission(PermProfileEdit)).Delete("/drafts/{scenarioId}", s.handleDeleteDraft)
				})
			})
		})

		// Learner routes, authenticated by bearer token; the profile id is the token subject
		if s.learners != nil {
			r.Route("/me", func(r chi.Router) {
				r.Use(s.learners.Authenticate)

				r.Get("/feed", s.handleFeed)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Timeout(60 * time.Second))

					r.Get("/", s.handleGetProfile)
					r.Get("/attempts", s.handleListAttempts)
					r.Post("/attempts", s.handleSubmit)
					r.Get("/drafts/{scenarioId}", s.handleGetDraft)
					r.Put("/drafts/{scenarioId}", s.handleSaveDraft)
					r.Delete("/drafts/{scenarioId}", s.handleDeleteDraft)
				})
			})
		}
	})

	s.router = r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKeys == nil {
		return next
	}
	return s.apiKeys.Authenticate(next)
}

func (s *Server) permission(perm string) func(http.Handler) http.Handler {
	if s.apiKeys == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.apiKeys.RequirePermission(perm)
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
