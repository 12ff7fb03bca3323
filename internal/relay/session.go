package relay

import "sync"

// StreamConfig describes the outbound pipeline for one client. It is
// captured at registration time and immutable until the client registers
// again.
type StreamConfig struct {
	// DestinationKey is the secret token identifying the outbound ingest
	// target, appended to the fixed ingest base address.
	DestinationKey string
	// Format is the container format of incoming chunks.
	Format InputFormat
	// HasAudio reports whether incoming chunks already interleave an audio
	// track. When false the pipeline synthesizes a silent one.
	HasAudio bool
}

// Session holds the relay state for a single client: its registered stream
// configuration and at most one live transcoding process. The session mutex
// serializes every transition (spawn, stop, clear-on-exit) with chunk
// delivery for that client.
type Session struct {
	ClientID string

	mu     sync.Mutex
	config StreamConfig
	proc   *Process
	// closed marks a session that has been replaced or removed from the
	// registry. A delivery that snapshotted the session before the
	// teardown must not spawn from its stale config.
	closed bool
}

func newSession(clientID string, cfg StreamConfig) *Session {
	return &Session{ClientID: clientID, config: cfg}
}

// Config returns the configuration captured at registration time.
func (s *Session) Config() StreamConfig {
	return s.config
}

// Process returns the live process handle, or nil when the session is idle.
func (s *Session) Process() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// clearProcess drops the handle if it still refers to p, so a subsequent
// chunk triggers a fresh spawn instead of writing into a dead pipe. A
// handle already replaced by a newer process is left alone.
func (s *Session) clearProcess(p *Process) {
	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	s.mu.Unlock()
}

// stop marks the session closed, signals the live process, if any, to shut
// down, and releases the handle. It does not wait for the exit.
func (s *Session) stop() *Process {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.closed = true
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}
	return p
}
