package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"browserq/internal/domain"
	"browserq/internal/metrics"
	"browserq/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Scheduler starts background execution of a freshly saved job.
type Scheduler interface {
	Submit(job domain.Job) error
}

type Server struct {
	router    *chi.Mux
	handler   http.Handler
	jobs      *usecase.Jobs
	scheduler Scheduler
}

func NewServer(jobs *usecase.Jobs, scheduler Scheduler, apiKey string) *Server {
	s := &Server{jobs: jobs, scheduler: scheduler}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Get("/docs", s.handleSwaggerUI)
	r.Get("/redoc", s.handleReDoc)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
		r.Delete("/{id}", s.handleDeleteJob)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.router = r
	s.handler = chainMiddleware(
		r,
		recoverHandler,
		requestIDHandler,
		realIPHandler,
		loggerHandler(func(w http.ResponseWriter, r *http.Request) bool { return r.URL.Path == "/health" }),
		corsHandler,
		apiKeyHandler(apiKey, append([]string{"/health"}, docPaths...)...),
	)
	return s
}

// Handler is the router wrapped in the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	log.Info().Msgf("server serving on port %d", port)
	return serve(ctx, httpServer)
}

// RunMetrics exposes Prometheus metrics on their own listener so scrapers
// do not need the API key.
func RunMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info().Msgf("metrics serving on %s", addr)
	return serve(ctx, &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
}

func serve(ctx context.Context, httpServer *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Str("addr", httpServer.Addr).Msg("Server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Str("addr", httpServer.Addr).Msg("Server stopped")
	return nil
}
