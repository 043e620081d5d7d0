package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
	"github.com/creativestore/creative-store/pkg/creativestore/imaging"
)

// Server wraps the creative store service for HTTP access.
type Server struct {
	service     creativestore.Service
	renderer    *imaging.Renderer
	environment string
	logger      zerolog.Logger
}

// NewServer creates a new HTTP server wrapper.
func NewServer(service creativestore.Service, renderer *imaging.Renderer, environment string, logger zerolog.Logger) *Server {
	return &Server{
		service:     service,
		renderer:    renderer,
		environment: environment,
		logger:      logger,
	}
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS for development
	if s.environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-Match, If-None-Match, X-Author, X-Continuation-Token")

				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)

	objects := NewObjectHandler(s.service, s.renderer, s.logger)
	templates := NewTemplateHandler(s.service, s.logger)
	sessions := NewSessionHandler(s.service, s.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/objects", objects.Routes())
		r.Mount("/templates", templates.Routes())
		r.Mount("/sessions", sessions.Routes())
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
