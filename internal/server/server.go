package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mackeh/aegismask/internal/config"
	"github.com/mackeh/aegismask/internal/moderation"
)

const shutdownTimeout = 5 * time.Second

// Server serves the moderation API.
type Server struct {
	svc    *moderation.Service
	hub    *Hub
	cfg    config.ServerConfig
	strict bool
	logger *log.Logger
}

// Options configures a Server.
type Options struct {
	Config config.ServerConfig
	// StrictKeywords rejects non-string request keywords with 422 instead
	// of dropping them.
	StrictKeywords bool
	Hub            *Hub
	Logger         *log.Logger
}

// New creates a Server for svc.
func New(svc *moderation.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Logger)
	}
	if opts.Config.MaxBodyBytes <= 0 {
		opts.Config.MaxBodyBytes = 1 << 20
	}
	return &Server{
		svc:    svc,
		hub:    opts.Hub,
		cfg:    opts.Config,
		strict: opts.StrictKeywords,
		logger: opts.Logger.WithPrefix("server"),
	}
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	auth := s.cfg.Auth

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(RequireRole(auth, RoleOperator)).Post("/filter", s.handleFilter)
		v1.With(RequireRole(auth, RoleViewer)).Get("/lists", s.handleLists)
		v1.With(RequireRole(auth, RoleAdmin)).Post("/lists/{name}/reload", s.handleReload)
	})

	r.With(RequireRole(auth, RoleViewer)).Handle("/metrics", promhttp.Handler())
	r.With(RequireRole(auth, RoleViewer)).Get("/api/ws", s.hub.ServeWS)

	return r
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", s.cfg.Addr, "auth", s.cfg.Auth.Enabled)

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", "err", err)
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return runErr
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start),
		)
	})
}
