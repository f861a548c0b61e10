package server

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mukkaz/mukkaz/internal/auth"
	"github.com/mukkaz/mukkaz/internal/ingest"
	"github.com/mukkaz/mukkaz/internal/ratelimit"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Pinger          Pinger
	IngestHandler   *ingest.Handler
	JWTSecret       string
	BaseURL         string
	StorageEndpoint string
}

type Server struct {
	router        chi.Router
	pinger        Pinger
	authHandler   *auth.Handler
	ingestHandler *ingest.Handler
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StorageEndpoint,
	}))

	s := &Server{router: r, pinger: cfg.Pinger, ingestHandler: cfg.IngestHandler}

	if cfg.IngestHandler != nil {
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET is required; set the environment variable")
		}
		s.authHandler = auth.NewHandler(cfg.JWTSecret)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	if s.ingestHandler == nil {
		return
	}

	s.router.Get("/api/limits", s.ingestHandler.Limits)

	// Uploads are expensive; the limiter only has to absorb accidental
	// resubmits, the duplicate guard handles the rest.
	uploadLimiter := ratelimit.New(0.2, 3)
	s.router.Route("/api/videos", func(r chi.Router) {
		r.Use(uploadLimiter.Middleware)
		r.Use(s.authHandler.Middleware)
		r.Post("/", s.ingestHandler.Upload)
	})

	draftLimiter := ratelimit.New(2, 10)
	s.router.Route("/api/drafts", func(r chi.Router) {
		r.Use(draftLimiter.Middleware)
		r.Use(s.authHandler.Middleware)
		r.Get("/", s.ingestHandler.ListDrafts)
		r.Post("/", s.ingestHandler.CreateDraft)
		r.Get("/{id}", s.ingestHandler.GetDraft)
		r.Put("/{id}", s.ingestHandler.UpdateDraft)
		r.Delete("/{id}", s.ingestHandler.DeleteDraft)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
