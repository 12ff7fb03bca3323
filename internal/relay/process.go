package relay

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// State identifies where a transcoding process is in its lifecycle.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateExited
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

var (
	// ErrNotWritable reports that a chunk arrived while the process input
	// was closed or mid-teardown. The chunk is dropped, not retried.
	ErrNotWritable = errors.New("relay: process input is not writable")
	// ErrBackpressure reports that the feed queue was full. Dropping keeps
	// end-to-end latency bounded instead of stalling the ingress channel.
	ErrBackpressure = errors.New("relay: process feed queue is full")
)

// Process is one external transcoding pipeline instance. It is owned
// exclusively by its Session: the session is the only caller permitted to
// feed it or close its input. Chunks are queued on a bounded feed channel
// drained by a single goroutine, which preserves per-client ordering while
// keeping writes to the pipeline non-blocking.
type Process struct {
	clientID string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   *lineCapture
	logger   *slog.Logger

	feed chan []byte
	quit chan struct{}
	done chan struct{}

	state    atomic.Int32
	stopOnce sync.Once
	grace    time.Duration
}

// State reports the process's current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// Done is closed once the subprocess exit has been observed and the
// session's handle cleared.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// LastLogLine returns the most recent diagnostic line the pipeline wrote to
// stderr, for inclusion in exit logs.
func (p *Process) LastLogLine() string {
	return p.stderr.Last()
}

// Write queues one chunk for delivery to the pipeline's stdin. It never
// blocks: chunks arriving while the process is stopping or exited, or while
// the feed queue is full, are dropped with a sentinel error.
func (p *Process) Write(chunk []byte) error {
	if p.State() != StateRunning {
		return ErrNotWritable
	}
	select {
	case <-p.quit:
		return ErrNotWritable
	case p.feed <- chunk:
		return nil
	default:
		return ErrBackpressure
	}
}

// Stop signals the pipeline to shut down: queued chunks are flushed, stdin
// is closed, and the subprocess is killed if it has not exited within the
// grace period. Stop returns without waiting for the exit; observe it via
// Done.
func (p *Process) Stop() {
	p.stopOnce.Do(func() {
		p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		close(p.quit)
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.grace):
				p.logger.Warn("pipeline did not exit after input close, killing",
					"client_id", p.clientID,
					"grace", p.grace)
				if p.cmd.Process != nil {
					_ = p.cmd.Process.Kill()
				}
			}
		}()
	})
}

// feedLoop is the single writer into the pipeline's stdin. After Stop it
// flushes whatever is already queued, closes stdin, and returns; a write
// error means the subprocess is going away, so remaining chunks are
// discarded rather than retried.
func (p *Process) feedLoop() {
	defer p.stdin.Close()
	for {
		select {
		case <-p.quit:
			for {
				select {
				case chunk := <-p.feed:
					if _, err := p.stdin.Write(chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		case chunk := <-p.feed:
			if _, err := p.stdin.Write(chunk); err != nil {
				return
			}
		}
	}
}

// lineCapture splits subprocess stderr into lines, forwarding each to the
// logger at debug level and retaining the most recent one for exit
// diagnostics.
type lineCapture struct {
	logger   *slog.Logger
	clientID string

	mu      sync.Mutex
	partial []byte
	last    string
}

func newLineCapture(logger *slog.Logger, clientID string) *lineCapture {
	return &lineCapture{logger: logger, clientID: clientID}
}

func (c *lineCapture) Write(p []byte) (int, error) {
	total := len(p)
	c.mu.Lock()
	c.partial = append(c.partial, p...)
	for {
		idx := bytes.IndexByte(c.partial, '\n')
		if idx == -1 {
			break
		}
		line := bytes.TrimSpace(c.partial[:idx])
		c.partial = c.partial[idx+1:]
		if len(line) == 0 {
			continue
		}
		c.last = string(line)
		c.logger.Debug("pipeline stderr", "client_id", c.clientID, "line", c.last)
	}
	c.mu.Unlock()
	return total, nil
}

// Last returns the most recent complete diagnostic line.
func (c *lineCapture) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
