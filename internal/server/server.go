// Package server exposes the serving loop and the stacked predictor over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/persona/internal/model"
)

// UserClassifier runs the serving loop for one user. *pipeline.Pipeline
// implements it.
type UserClassifier interface {
	ClassifyUserPosts(ctx context.Context, userID string) (model.UserPredictions, error)
}

// TextPredictor labels ad-hoc texts. *engine.Engine implements it.
type TextPredictor interface {
	PredictBatch(texts []string) ([]model.Prediction, error)
	Labels() []string
}

// Server is the HTTP surface. It holds no state of its own beyond its
// collaborators.
type Server struct {
	users     UserClassifier
	predictor TextPredictor
	timeout   time.Duration
	log       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRequestTimeout bounds each request's context. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New creates a Server.
func New(users UserClassifier, predictor TextPredictor, opts ...Option) *Server {
	s := &Server{
		users:     users,
		predictor: predictor,
		timeout:   30 * time.Second,
		log:       slog.With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.timeout > 0 {
			r.Use(chimiddleware.Timeout(s.timeout))
		}
		r.Post("/ping", s.handlePing)
		r.Route("/v1", func(r chi.Router) {
			r.Post("/predict", s.handlePredict)
			r.Get("/users/{userID}/predictions", s.handleUserPredictions)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
