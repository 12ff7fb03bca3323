package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"camrelay/internal/observability/metrics"
)

// ErrNoSession reports that a chunk arrived for a client with no current
// registration. The chunk is dropped; the ingress channel stays open.
var ErrNoSession = errors.New("relay: no session registered for client")

// Registry is the process-wide table of client sessions. It is created at
// service start; entries are added and removed only through Put and Remove,
// and every live pipeline is stopped by Shutdown at service exit.
type Registry struct {
	supervisor *Supervisor
	logger     *slog.Logger
	metrics    *metrics.Recorder

	mu       sync.RWMutex
	sessions map[string]*Session

	// testHookDeliverGap runs between the registry lookup and the session
	// lock in Deliver; tests use it to interleave a replacement or removal.
	testHookDeliverGap func()
}

// NewRegistry builds an empty registry backed by the given supervisor.
func NewRegistry(supervisor *Supervisor, logger *slog.Logger, recorder *metrics.Recorder) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &Registry{
		supervisor: supervisor,
		logger:     logger,
		metrics:    recorder,
		sessions:   make(map[string]*Session),
	}
}

// Put inserts or replaces the stream configuration for clientID. Any
// process running under a previous registration is signalled to stop
// before the new configuration becomes visible, so no chunk can reach a
// pipeline configured with a stale destination.
func (r *Registry) Put(clientID string, cfg StreamConfig) {
	r.mu.Lock()
	old, replaced := r.sessions[clientID]
	if replaced {
		old.stop()
	}
	r.sessions[clientID] = newSession(clientID, cfg)
	r.mu.Unlock()

	if replaced {
		r.logger.Info("session replaced", "client_id", clientID, "format", cfg.Format, "has_audio", cfg.HasAudio)
	} else {
		r.logger.Info("session registered", "client_id", clientID, "format", cfg.Format, "has_audio", cfg.HasAudio)
		r.metrics.SessionOpened()
	}
}

// Get returns the current session for clientID.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[clientID]
	r.mu.RUnlock()
	return sess, ok
}

// Remove stops any running process for clientID and deletes the session.
// Removing an unknown client is not an error.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	sess, ok := r.sessions[clientID]
	delete(r.sessions, clientID)
	r.mu.Unlock()
	if !ok {
		return
	}
	sess.stop()
	r.logger.Info("session removed", "client_id", clientID)
	r.metrics.SessionClosed()
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Deliver routes one inbound chunk to the client's pipeline, spawning it on
// the first chunk rather than at registration so no idle pipeline is held
// open before any data exists. Chunks with no registered session, or
// arriving while the pipeline is not writable, are dropped and counted;
// dropping is never surfaced to the ingress connection as a failure.
func (r *Registry) Deliver(clientID string, chunk []byte) error {
	r.mu.RLock()
	sess := r.sessions[clientID]
	r.mu.RUnlock()
	if sess == nil {
		r.metrics.ChunkDropped("no_session")
		r.logger.Debug("chunk dropped, no session", "client_id", clientID)
		return ErrNoSession
	}

	if r.testHookDeliverGap != nil {
		r.testHookDeliverGap()
	}

	sess.mu.Lock()
	// The session may have been replaced or removed between the lookup
	// above and taking its lock. Spawning from it would start a pipeline
	// with a stale destination that nothing in the registry can stop.
	if sess.closed {
		sess.mu.Unlock()
		r.metrics.ChunkDropped("no_session")
		r.logger.Debug("chunk dropped, session closed", "client_id", clientID)
		return ErrNoSession
	}
	p := sess.proc
	if p == nil || p.State() == StateExited {
		started, err := r.supervisor.Start(clientID, sess.config, sess.clearProcess)
		if err != nil {
			sess.mu.Unlock()
			r.metrics.ChunkDropped("spawn_failed")
			r.logger.Error("pipeline spawn failed", "client_id", clientID, "error", err)
			return fmt.Errorf("spawn pipeline: %w", err)
		}
		sess.proc = started
		p = started
	}
	sess.mu.Unlock()

	switch err := p.Write(chunk); {
	case err == nil:
		r.metrics.ChunkForwarded(len(chunk))
		return nil
	case errors.Is(err, ErrBackpressure):
		r.metrics.ChunkDropped("backpressure")
		r.logger.Debug("chunk dropped, feed queue full", "client_id", clientID)
		return err
	default:
		r.metrics.ChunkDropped("not_writable")
		r.logger.Debug("chunk dropped, pipeline not writable", "client_id", clientID)
		return err
	}
}

// Shutdown stops every live pipeline concurrently and waits for the
// subprocesses to exit or the context to be cancelled. The registry is
// emptied either way.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			p := sess.stop()
			if p == nil {
				return nil
			}
			select {
			case <-p.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		r.metrics.SessionClosed()
	}
	return g.Wait()
}
