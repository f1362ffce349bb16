// Package server exposes the analyst and the warehouse over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"memberlens/internal/analyst"
	"memberlens/internal/logging"
	"memberlens/internal/signal"
	"memberlens/internal/warehouse"
)

// Server is the HTTP API host.
type Server struct {
	analyst    analyst.Analyst
	store      warehouse.Store
	thresholds signal.Thresholds
	log        *zap.Logger
	router     *chi.Mux
	http       *http.Server
}

// New creates the server. The write timeout leaves room for a full
// generation round trip under the 60s request timeout.
func New(addr string, a analyst.Analyst, store warehouse.Store, th signal.Thresholds, logger *zap.Logger) *Server {
	s := &Server{
		analyst:    a,
		store:      store,
		thresholds: th,
		log:        logging.Named(logger, "server"),
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Post("/api/v1/ask", s.handleAsk)

	r.Route("/api/v1/orgs", func(r chi.Router) {
		r.Get("/", s.handleListOrgs)
		r.Get("/{orgCode}", s.handleGetOrg)
	})

	s.router = r
}

// Handler returns the route handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP API listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request through the zap logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
