package observability

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListenAddr is used when ServerConfig.ListenAddr is empty.
const DefaultListenAddr = ":9090"

// ServerConfig configures the ops server.
type ServerConfig struct {
	ListenAddr  string
	MetricsPath string // Default: /metrics
}

// Server is the ops HTTP server: liveness, readiness and Prometheus
// exposition. It never exposes tool invocation.
type Server struct {
	config ServerConfig
	obs    *Observability
	logger *slog.Logger
	okapi  *okapi.Okapi

	mu     sync.Mutex
	server *http.Server
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewServer builds the ops server. obs may be nil; /metrics is only mounted
// when metrics are enabled.
func NewServer(cfg ServerConfig, obs *Observability, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		config: cfg,
		obs:    obs,
		logger: logger,
		okapi:  okapi.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	var metrics *MetricsCollector
	if s.obs != nil {
		metrics = s.obs.Metrics
	}
	if ts := s.obs.TracerOrNil(); metrics != nil || ts != nil {
		tracer := tracerFrom(ts)
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return HTTPMetricsMiddleware(metrics, tracer, next)
		})
	}

	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)

	if metrics != nil {
		s.okapi.HandleStd("GET", s.config.MetricsPath, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	}
}

// Start serves until Stop is called or the server fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "ops server starting", slog.String("addr", s.config.ListenAddr))
	return s.okapi.StartServer(srv)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "ops server stopping")
	return s.okapi.Shutdown(srv)
}

// handleLiveness is the liveness probe.
func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: StatusOK})
}

// handleReadiness runs the registered checks and returns 200 or 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.obs == nil || s.obs.Health == nil {
		return c.OK(&HealthResponse{Status: StatusOK})
	}
	status := s.obs.Health.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
