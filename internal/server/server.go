// Package server exposes the pipeline over HTTP for external tooling. It
// fronts the runner; every mutation goes through the same code paths the
// CLI uses.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"storyloom/internal/llm"
	"storyloom/internal/logging"
	"storyloom/internal/runner"
	"storyloom/internal/session"
	"storyloom/internal/video"
)

// Options wires a Server.
type Options struct {
	Bind           string
	Runner         *runner.Runner
	Store          *session.Store
	LLM            *llm.Client
	Registry       *video.Registry
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server serves the HTTP API on a single bind address.
type Server struct {
	bind     string
	runner   *runner.Runner
	store    *session.Store
	llm      *llm.Client
	registry *video.Registry
	logger   *slog.Logger

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// New constructs a Server. The runner and store are required; the LLM
// client and registry only feed the health endpoint.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: runner required")
	}
	if opts.Store == nil {
		return nil, errors.New("server: store required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		bind:     opts.Bind,
		runner:   opts.Runner,
		store:    opts.Store,
		llm:      opts.LLM,
		registry: opts.Registry,
		logger:   logging.NewComponentLogger(logger, "api-server"),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/artifacts", s.handleEditArtifact).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/videos/refresh", s.handleRefreshVideos).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/videos/{shot}/retry", s.handleRetryVideo).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	s.handler = handlers.RecoveryHandler(handlers.RecoveryLogger(&recoveryLogger{logger: s.logger}))(cors(r))

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, draining in-flight requests briefly.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l *recoveryLogger) Println(args ...interface{}) {
	l.logger.Error("handler panic", logging.String("detail", fmt.Sprint(args...)))
}
