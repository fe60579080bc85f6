// Package api provides the HTTP REST API for blktagd.
//
// It exposes the device tag cache: listing devices and tag types, tag
// lookups with on-demand probing, and a manual re-probe trigger.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/blktag/internal/infrastructure/config"
	"github.com/nerrad567/blktag/internal/infrastructure/logging"
	"github.com/nerrad567/blktag/internal/registry"
	"github.com/nerrad567/blktag/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every backing service whose state is
// reported by the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RunLister pages through the probe history. Implemented by *store.Store.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) (*store.RunList, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *registry.Registry
	Runs     RunLister // optional

	// Checks are reported by /health under their map key. A failing check
	// marks the service degraded.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for blktagd.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *registry.Registry
	runs     RunLister
	checks   map[string]HealthChecker
	version  string
	server   *http.Server
	addr     string
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		runs:     deps.Runs,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener is opened synchronously so that a port already in use is
// reported here; requests are then served in a background goroutine until
// Close is called.
//
// Parameters:
//   - ctx: Base context for request handlers
//
// Returns:
//   - error: If the listener cannot be opened
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr().String()
	s.logger.Info("API server listening", "address", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, once started.
func (s *Server) Addr() string {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
