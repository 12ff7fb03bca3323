package relay

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"camrelay/internal/observability/metrics"
	"camrelay/internal/testsupport"
)

func newTestSupervisor(t *testing.T, cfg SupervisorConfig) *Supervisor {
	t.Helper()
	if cfg.IngestBase == "" {
		cfg.IngestBase = "rtmp://ingest.test/live"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return NewSupervisor(cfg)
}

func waitExit(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatalf("pipeline did not exit within %v", timeout)
	}
}

func TestStartPassesBinaryAndDestination(t *testing.T) {
	testsupport.RequireTool(t, "cat")

	var gotName string
	var gotArgs []string
	sink := testsupport.SinkCommand()
	sup := newTestSupervisor(t, SupervisorConfig{FFmpegPath: "/opt/ffmpeg/bin/ffmpeg"})
	sup.command = func(name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return sink(name, args...)
	}

	p, err := sup.Start("client-a", StreamConfig{DestinationKey: "key-1", Format: FormatWebM, HasAudio: true}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Stop()
	waitExit(t, p, 5*time.Second)

	if gotName != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected binary %q", gotName)
	}
	if len(gotArgs) == 0 || gotArgs[len(gotArgs)-1] != "rtmp://ingest.test/live/key-1" {
		t.Fatalf("expected destination as final argument, got %v", gotArgs)
	}
}

func TestStartFeedsQueuedChunksInOrder(t *testing.T) {
	testsupport.RequireTool(t, "sh")

	outFile := filepath.Join(t.TempDir(), "out")
	sup := newTestSupervisor(t, SupervisorConfig{})
	sup.command = testsupport.FileSinkCommand(outFile)

	p, err := sup.Start("client-a", StreamConfig{DestinationKey: "key-1"}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, chunk := range []string{"alpha ", "beta ", "gamma"} {
		if err := p.Write([]byte(chunk)); err != nil {
			t.Fatalf("write %q: %v", chunk, err)
		}
	}
	p.Stop()
	waitExit(t, p, 5*time.Second)

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "alpha beta gamma" {
		t.Fatalf("unexpected pipeline input %q", data)
	}
}

func TestWatchObservesFailureAndRunsExitHook(t *testing.T) {
	testsupport.RequireTool(t, "sh")

	sup := newTestSupervisor(t, SupervisorConfig{})
	sup.command = testsupport.ScriptCommand(`echo "codec mismatch" >&2; exit 3`)

	exited := make(chan *Process, 1)
	p, err := sup.Start("client-a", StreamConfig{DestinationKey: "key-1"}, func(p *Process) {
		exited <- p
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitExit(t, p, 5*time.Second)

	select {
	case got := <-exited:
		if got != p {
			t.Fatalf("exit hook received wrong process")
		}
	default:
		t.Fatalf("exit hook did not run before Done closed")
	}
	if p.State() != StateExited {
		t.Fatalf("expected exited state, got %v", p.State())
	}
	if p.LastLogLine() != "codec mismatch" {
		t.Fatalf("unexpected stderr capture %q", p.LastLogLine())
	}
	if err := p.Write([]byte("late")); !errors.Is(err, ErrNotWritable) {
		t.Fatalf("expected ErrNotWritable after exit, got %v", err)
	}
}

func TestStopKillsPipelineThatIgnoresInputClose(t *testing.T) {
	testsupport.RequireTool(t, "sh")

	sup := newTestSupervisor(t, SupervisorConfig{StopGrace: 100 * time.Millisecond})
	// Never reads stdin, so input close alone cannot end it.
	sup.command = testsupport.ScriptCommand("exec sleep 30")

	p, err := sup.Start("client-a", StreamConfig{DestinationKey: "key-1"}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Stop()
	waitExit(t, p, 5*time.Second)

	if p.State() != StateExited {
		t.Fatalf("expected exited state, got %v", p.State())
	}
}
