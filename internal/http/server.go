// Package http provides the HTTP server and API handlers for hlsgate.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmylchreest/hlsgate/internal/http/middleware"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// requests, including players mid-segment.
	ShutdownTimeout time.Duration

	// CORSOrigins lists origins allowed to call the API cross-origin.
	// Empty or ["*"] allows any origin without credentials.
	CORSOrigins []string
}

// DefaultServerConfig returns usable defaults for local deployments. The
// WriteTimeout must comfortably exceed one segment duration or slow players
// get cut off mid-download.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server wraps the chi router and the Huma API mounted on it. JSON
// operations register through API(); media and login routes that bypass
// OpenAPI register on Router() directly.
type Server struct {
	config     ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router with its middleware chain. version labels the
// OpenAPI document and should match the build version.
func NewServer(config ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(config.CORSOrigins))

	// Compress playlists, JSON and UI assets. TS segments are already
	// compressed media and are deliberately not in the list.
	router.Use(chimiddleware.Compress(5,
		"application/json",
		"application/vnd.apple.mpegurl",
		"audio/mpegurl",
		"audio/x-mpegurl",
		"text/html",
		"text/css",
		"application/javascript",
		"text/plain",
	))

	// DocsPath is cleared because the docs route is a custom handler.
	humaConfig := huma.DefaultConfig("hlsgate API", version)
	humaConfig.Info.Description = "Gateway republishing ClearKey-encrypted MPEG-DASH channels as clear HLS"
	humaConfig.DocsPath = ""

	return &Server{
		config: config,
		router: router,
		api:    humachi.New(router, humaConfig),
		logger: logger,
	}
}

// API exposes the Huma instance for registering operations.
func (s *Server) API() huma.API { return s.api }

// Router exposes the chi router for non-OpenAPI routes.
func (s *Server) Router() *chi.Mux { return s.router }

// Start listens and serves until the server is shut down or fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully. It blocks for the lifetime of the server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() { errChan <- s.Start() }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
