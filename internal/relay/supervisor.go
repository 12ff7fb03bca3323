package relay

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"camrelay/internal/observability/metrics"
)

const (
	// DefaultStopGrace bounds how long a pipeline may linger between input
	// close and a forced kill.
	DefaultStopGrace = 3 * time.Second
	// DefaultQueueDepth is the per-pipeline feed queue capacity. Chunks
	// beyond it are dropped to keep ingress latency bounded.
	DefaultQueueDepth = 64
)

// SupervisorConfig carries the knobs for spawning transcoding pipelines.
type SupervisorConfig struct {
	// FFmpegPath is the pipeline binary, resolved via PATH when relative.
	FFmpegPath string
	// IngestBase is the fixed outbound ingest address; a session's
	// destination key is appended to form the full push URL.
	IngestBase string
	// StopGrace bounds graceful shutdown of a pipeline before it is killed.
	StopGrace time.Duration
	// QueueDepth is the per-pipeline feed queue capacity.
	QueueDepth int
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	// Command overrides how the subprocess is constructed. Tests use it to
	// substitute a harmless binary for the real pipeline.
	Command func(name string, args ...string) *exec.Cmd
}

// Supervisor owns the lifecycle of external transcoding pipelines: spawn,
// feed, observe exit, and kill. It never restarts a pipeline on its own;
// after an exit the owning session clears its handle and the next inbound
// chunk triggers a fresh spawn.
type Supervisor struct {
	ffmpegPath string
	ingestBase string
	stopGrace  time.Duration
	queueDepth int
	logger     *slog.Logger
	metrics    *metrics.Recorder

	// command constructs the subprocess; replaceable in tests.
	command func(name string, args ...string) *exec.Cmd
}

// NewSupervisor builds a Supervisor, filling unset config fields with
// defaults.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	command := cfg.Command
	if command == nil {
		command = exec.Command
	}
	return &Supervisor{
		ffmpegPath: path,
		ingestBase: cfg.IngestBase,
		stopGrace:  grace,
		queueDepth: depth,
		logger:     logger,
		metrics:    recorder,
		command:    command,
	}
}

// Start spawns exactly one pipeline configured from cfg. Configuration is
// immutable for the life of the process instance. onExit runs once the
// subprocess exit has been observed, before Done is closed, so the owning
// session can clear its handle ahead of any respawn.
func (s *Supervisor) Start(clientID string, cfg StreamConfig, onExit func(*Process)) (*Process, error) {
	args := pipelineArgs(cfg, destinationURL(s.ingestBase, cfg.DestinationKey))
	cmd := s.command(s.ffmpegPath, args...)

	capture := newLineCapture(s.logger, clientID)
	cmd.Stdout = io.Discard
	cmd.Stderr = capture

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}

	p := &Process{
		clientID: clientID,
		cmd:      cmd,
		stdin:    stdin,
		stderr:   capture,
		logger:   s.logger,
		feed:     make(chan []byte, s.queueDepth),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		grace:    s.stopGrace,
	}
	p.state.Store(int32(StateRunning))

	s.logger.Info("pipeline started",
		"client_id", clientID,
		"format", cfg.Format,
		"has_audio", cfg.HasAudio,
		"pid", cmd.Process.Pid)
	s.metrics.PipelineStarted()

	go p.feedLoop()
	go s.watch(p, onExit)
	return p, nil
}

// StopGrace reports the configured teardown grace period.
func (s *Supervisor) StopGrace() time.Duration {
	return s.stopGrace
}

func (s *Supervisor) watch(p *Process, onExit func(*Process)) {
	err := p.cmd.Wait()
	p.state.Store(int32(StateExited))
	if err != nil {
		s.logger.Error("pipeline exited",
			"client_id", p.clientID,
			"error", err,
			"exit_code", p.cmd.ProcessState.ExitCode(),
			"stderr", p.LastLogLine())
	} else {
		s.logger.Info("pipeline completed", "client_id", p.clientID)
	}
	s.metrics.PipelineExited(err == nil)
	if onExit != nil {
		onExit(p)
	}
	close(p.done)
}
