package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"camrelay/internal/api"
	"camrelay/internal/observability/logging"
	"camrelay/internal/observability/metrics"
	"camrelay/internal/serverutil"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr            string
	TLS             TLSConfig
	Logger          *slog.Logger
	Metrics         *metrics.Recorder
	ShutdownTimeout time.Duration
}

type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	metrics         *metrics.Recorder
	tls             serverutil.TLSConfig
	shutdownTimeout time.Duration
}

// New wires the control endpoint, the ingress channel, and the
// observability routes behind one multiplexer with shared middleware.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/streams", handler.Streams)
	mux.HandleFunc("/api/streams/", handler.StreamByID)
	mux.HandleFunc("/api/ingest/", handler.Ingest)

	chain := http.Handler(mux)
	chain = metrics.HTTPMiddleware(recorder, chain)
	chain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(chain)
	chain = requestIDMiddleware(cfg.Logger, chain)

	// No Read/WriteTimeout: the ingress route hijacks the connection for a
	// long-lived WebSocket and manages its own deadlines.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer:      httpServer,
		logger:          cfg.Logger,
		metrics:         recorder,
		tls:             serverutil.TLSConfig{CertFile: cfg.TLS.CertFile, KeyFile: cfg.TLS.KeyFile},
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// Run starts the HTTP listener and blocks until the context is cancelled or
// the server fails, shutting down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	return serverutil.Run(ctx, serverutil.Config{
		Server:          s.httpServer,
		TLS:             s.tls,
		ShutdownTimeout: s.shutdownTimeout,
	})
}

// Handler exposes the assembled middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
