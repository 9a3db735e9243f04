package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/karmakaze/quicklog/internal/deployment"
	"github.com/karmakaze/quicklog/internal/history"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// ShutdownTimeout bounds how long Start waits for in-flight requests
	// after its context is cancelled.
	ShutdownTimeout = 30 * time.Second
)

// Options holds the request-handling knobs taken from the configuration.
type Options struct {
	MaxPayloadBytes    int64
	RateLimitPerMinute int           // 0 disables rate limiting
	WriteTimeout       time.Duration // 0 means no write timeout
}

// WriteTimeoutFor returns a write timeout long enough for a full deploy of
// n commands, each bounded by commandTimeout. An unbounded command timeout
// yields no write timeout.
func WriteTimeoutFor(n int, commandTimeout time.Duration) time.Duration {
	if commandTimeout <= 0 {
		return 0
	}
	return time.Duration(n)*commandTimeout + HTTPWriteTimeout
}

// Server represents the HTTP server
type Server struct {
	Deployer *deployment.Deployer
	History  *history.History // nil disables the delivery journal
	Logger   *slog.Logger
	Options  Options

	mu       sync.Mutex
	draining bool           // set once shutdown starts; guarded by mu
	deployWg sync.WaitGroup // tracks deploys still running
}

// NewServer creates a new server instance
func NewServer(deployer *deployment.Deployer, hist *history.History, logger *slog.Logger, opts Options) *Server {
	return &Server{
		Deployer: deployer,
		History:  hist,
		Logger:   logger,
		Options:  opts,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// The limiter keys on the connection address, so it must run before
	// RealIP rewrites RemoteAddr from client-supplied headers.
	if s.Options.RateLimitPerMinute > 0 {
		r.Use(NewRateLimitMiddleware(s.Options.RateLimitPerMinute, s.Logger))
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Logger))
	r.Use(middleware.Recoverer)

	// Liveness answers on every path.
	for _, pattern := range []string{"/", "/*"} {
		r.Get(pattern, s.HandleLiveness)
		r.Head(pattern, s.HandleLiveness)
	}

	webhook := s.handle(s.HandleWebhook)
	r.Post("/", webhook)
	r.Post("/*", webhook)

	return r
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully,
// waiting for running deploys to finish.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: s.Options.WriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	s.WaitForDeployments()
	return err
}

// beginDeploy registers a deploy with the drain group. It returns false once
// the server is draining; the caller must not deploy then.
func (s *Server) beginDeploy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return false
	}
	s.deployWg.Add(1)
	return true
}

// WaitForDeployments stops new deploys from starting and blocks until the
// running ones finish.
func (s *Server) WaitForDeployments() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	s.deployWg.Wait()
}

// Close waits for running deploys and closes the journal.
func (s *Server) Close() error {
	s.WaitForDeployments()

	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
