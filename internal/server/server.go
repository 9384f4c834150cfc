// Package server exposes the Invoice Kitchen HTTP surface: invoice
// submission, the render completion callback, the job status endpoint, the
// tokenized invoice view consumed by the headless renderer, and the per
// profile draft endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/config"
	"github.com/wseagar/invoice-kitchen/internal/draft"
	"github.com/wseagar/invoice-kitchen/internal/kvstore"
	"github.com/wseagar/invoice-kitchen/internal/metrics"
	"github.com/wseagar/invoice-kitchen/internal/pipeline"
	"github.com/wseagar/invoice-kitchen/internal/token"
)

// Server hosts the HTTP handlers and their dependencies.
type Server struct {
	cfg    *config.Config
	pipe   *pipeline.Pipeline
	drafts *draft.Store
	kv     kvstore.Store
	minter *token.Minter
	log    zerolog.Logger
}

// New wires together the HTTP layer.
func New(cfg *config.Config, pipe *pipeline.Pipeline, drafts *draft.Store, kv kvstore.Store, minter *token.Minter, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, pipe: pipe, drafts: drafts, kv: kv, minter: minter, log: log}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/invoice", s.handleSubmit)
		r.Put("/invoice", s.handleCallback)
		r.Get("/invoice/{fileID}", s.handleStatus)

		r.Route("/draft/{profile}", func(r chi.Router) {
			r.Get("/", s.handleDraftGet)
			r.Put("/", s.handleDraftPut)
			r.Post("/new", s.handleDraftNew)
			r.Post("/clear", s.handleDraftClear)
			r.Post("/preset", s.handleDraftPreset)
		})
	})

	r.Get("/invoice/view", s.handleView)
	return r
}

// Serve runs the HTTP server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", s.cfg.Address).Msg("api listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// corsMiddleware reflects the origin back only when it is on the allow list,
// matching the original worker's behavior.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
