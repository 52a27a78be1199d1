// Package server implements the cloudkit HTTP gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/server/handlers"
	"github.com/3leaps/cloudkit/internal/server/middleware"
	"github.com/3leaps/cloudkit/pkg/storage"
)

// Server is the HTTP gateway.
type Server struct {
	host string
	port int

	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger

	client      storage.Client
	corsOrigins []string
	limiter     *rate.Limiter

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithStorage mounts the storage API under /v1 and registers a storage
// readiness check.
func WithStorage(client storage.Client) Option {
	return func(s *Server) { s.client = client }
}

// WithLogger sets the request and lifecycle logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCORS allows cross-origin requests from origins.
func WithCORS(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit caps the sustained request rate. A non-positive rps disables
// the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeouts sets the http.Server timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout, s.writeTimeout, s.idleTimeout = read, write, idle
	}
}

// New builds a server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		logger:       zap.NewNop(),
		readTimeout:  30 * time.Second,
		writeTimeout: 5 * time.Minute,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery)

	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "HEAD", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Encoding", "Cache-Control",
				middleware.RequestIDHeader, handlers.HeaderACL, handlers.HeaderSSE,
				handlers.HeaderQueueSize, handlers.HeaderPartSize},
			ExposedHeaders: []string{middleware.RequestIDHeader, "ETag", handlers.HeaderDeleteMark},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		envelope := gferrors.NewErrorEnvelope(apperrors.CodeNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)).
			WithCorrelationID(middleware.GetRequestID(r.Context()))
		apperrors.WriteEnvelope(w, http.StatusNotFound, envelope)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		envelope := gferrors.NewErrorEnvelope(apperrors.CodeMethodNotAllowed, fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path)).
			WithCorrelationID(middleware.GetRequestID(r.Context()))
		apperrors.WriteEnvelope(w, http.StatusMethodNotAllowed, envelope)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.client != nil {
		sh := handlers.NewStorageHandler(s.client, s.logger)
		if hm := handlers.GetHealthManager(); hm != nil {
			hm.RegisterChecker("storage", sh)
		}
		r.Route("/v1", func(api chi.Router) {
			api.Use(middleware.RateLimit(s.limiter))
			sh.Routes(api)
		})
	}

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
