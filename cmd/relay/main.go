// Command relay starts the camrelay media relay service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"camrelay/internal/api"
	"camrelay/internal/observability/logging"
	"camrelay/internal/observability/metrics"
	"camrelay/internal/relay"
	"camrelay/internal/server"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	rtmpBase := flag.String("rtmp-base", "", "base RTMP ingest URL that destination keys are appended to")
	ffmpegPath := flag.String("ffmpeg", "", "path to the ffmpeg binary")
	stopGrace := flag.Duration("stop-grace", 0, "grace period between pipeline input close and forced kill")
	queueDepth := flag.Int("queue-depth", 0, "per-pipeline chunk queue capacity")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 0, "bound on graceful HTTP shutdown")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CAMRELAY_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CAMRELAY_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	ingestBase := firstNonEmpty(*rtmpBase, os.Getenv("CAMRELAY_RTMP_BASE"))
	if ingestBase == "" {
		logger.Error("RTMP ingest base URL is required (set -rtmp-base or CAMRELAY_RTMP_BASE)")
		os.Exit(1)
	}

	supervisor := relay.NewSupervisor(relay.SupervisorConfig{
		FFmpegPath: firstNonEmpty(*ffmpegPath, os.Getenv("CAMRELAY_FFMPEG")),
		IngestBase: ingestBase,
		StopGrace:  resolveDuration(*stopGrace, "CAMRELAY_STOP_GRACE", 0),
		QueueDepth: resolveInt(*queueDepth, "CAMRELAY_QUEUE_DEPTH"),
		Logger:     logging.WithComponent(logger, "supervisor"),
		Metrics:    recorder,
	})
	registry := relay.NewRegistry(supervisor, logging.WithComponent(logger, "registry"), recorder)

	handler := &api.Handler{
		Registry: registry,
		Logger:   logging.WithComponent(logger, "api"),
		Metrics:  recorder,
	}

	listenAddr := firstNonEmpty(*addr, os.Getenv("CAMRELAY_ADDR"), ":8935")
	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("CAMRELAY_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CAMRELAY_TLS_KEY")),
		},
		Logger:          logging.WithComponent(logger, "http"),
		Metrics:         recorder,
		ShutdownTimeout: resolveDuration(*shutdownTimeout, "CAMRELAY_SHUTDOWN_TIMEOUT", 0),
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("camrelay listening", "addr", listenAddr, "rtmp_base", ingestBase)
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server failed", "error", err)
	}

	teardownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := registry.Shutdown(teardownCtx); err != nil {
		logger.Warn("pipeline teardown incomplete", "error", err)
	}
	logger.Info("camrelay stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		if value, err := strconv.Atoi(env); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}
