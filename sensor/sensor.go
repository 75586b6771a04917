package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// Source wraps a physical camera device. Open must be called before Acquire;
// Acquire blocks until a frame arrives, the context expires, or the device
// fails. A timed-out wait is reported as ErrAcquireTimeout (possibly wrapped)
// so the stream can tell transient waits from hard faults. Acquire may be
// called concurrently by the stream's loop and by Immediate callers;
// implementations must tolerate that.
type Source interface {
	Open(ctx context.Context) error
	Acquire(ctx context.Context) (*Frame, error)
	Close() error
}

// StreamStatus describes the lifecycle state of a Stream.
type StreamStatus int

const (
	// StreamIdle means the stream has never been started.
	StreamIdle StreamStatus = iota
	// StreamRunning means the acquisition loop is active.
	StreamRunning
	// StreamFailed means the loop exited after hitting the consecutive
	// failure ceiling. The device has been released.
	StreamFailed
	// StreamStopped means Stop was called and the loop exited cleanly.
	StreamStopped
)

func (s StreamStatus) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamRunning:
		return "running"
	case StreamFailed:
		return "failed"
	case StreamStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StreamConfig holds tuning parameters for a Stream.
type StreamConfig struct {
	// AcquireTimeout bounds a single frame wait inside the loop.
	AcquireTimeout time.Duration
	// JoinTimeout bounds how long Stop waits for the loop to exit.
	JoinTimeout time.Duration
	// FailureCeiling is the number of consecutive failed acquisitions
	// (timeouts included) after which the loop gives up and the stream
	// reports StreamFailed.
	FailureCeiling int
}

// DefaultStreamConfig returns a StreamConfig with sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		AcquireTimeout: 5 * time.Second,
		JoinTimeout:    2 * time.Second,
		FailureCeiling: 5,
	}
}

// Stream owns a background acquisition loop over a Source and a single-slot
// latest-wins frame buffer. The loop is the only writer, consumers only read
// and never block the producer; a slow consumer simply misses the frames that
// were overwritten while it wasn't polling.
type Stream struct {
	name   string
	src    Source
	cfg    StreamConfig
	logger logging.Logger

	mu       sync.Mutex
	status   StreamStatus
	frame    *Frame
	seq      uint64
	lastRead uint64
	drops    uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewStream creates a Stream over src. The name is used for log prefixes only.
func NewStream(name string, src Source, cfg StreamConfig, logger logging.Logger) *Stream {
	return &Stream{
		name:   name,
		src:    src,
		cfg:    cfg,
		logger: logger,
	}
}

// Start opens the device and launches the acquisition loop. A device-open
// failure is reported synchronously, wrapped around ErrConnect. Calling Start
// while the stream is already running logs and returns nil without spawning a
// second loop.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StreamRunning {
		s.mu.Unlock()
		s.logger.Infof("Sensor %s already running; start ignored", s.name)
		return nil
	}
	s.mu.Unlock()

	if err := s.src.Open(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.name, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.status = StreamRunning
	s.frame = nil
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Infof("Sensor %s started", s.name)
	go s.acquireLoop(loopCtx, done)
	return nil
}

// Stop signals the acquisition loop to exit, waits for it up to JoinTimeout,
// then releases the device. Safe to call when the stream is not running.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.status != StreamRunning {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.cfg.JoinTimeout):
		s.logger.Warnf("Sensor %s loop did not exit within %v", s.name, s.cfg.JoinTimeout)
	}

	s.mu.Lock()
	if s.status == StreamRunning {
		s.status = StreamStopped
	}
	s.mu.Unlock()

	if err := s.src.Close(); err != nil {
		s.logger.Warnf("Sensor %s close: %v", s.name, err)
	}
	s.logger.Infof("Sensor %s stopped", s.name)
}

// Latest returns the most recent buffered frame, or (nil, false) if no frame
// has arrived yet. Never blocks. The slot is not cleared: two consecutive
// calls may return the same frame if the producer hasn't replaced it.
func (s *Stream) Latest() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	s.lastRead = s.frame.Seq
	return s.frame, true
}

// Immediate bypasses the buffer and performs one synchronous acquisition
// directly from the source, for callers that need a guaranteed-fresh sample
// rather than whatever is buffered. The stream must be running.
func (s *Stream) Immediate(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	running := s.status == StreamRunning
	s.mu.Unlock()
	if !running {
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, s.name)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()
	frame, err := s.src.Acquire(acqCtx)
	if err != nil {
		return nil, fmt.Errorf("immediate acquisition from %s: %w", s.name, err)
	}
	return frame, nil
}

// Status reports the current lifecycle state.
func (s *Stream) Status() StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Drops reports how many buffered frames were evicted unread.
func (s *Stream) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// acquireLoop pulls frames until stopped or the consecutive failure ceiling
// is reached. Each successful acquisition overwrites the single-slot buffer,
// evicting any unread prior frame.
func (s *Stream) acquireLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		acqCtx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		frame, err := s.src.Acquire(acqCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// Stopped mid-acquisition.
				return
			}
			failures++
			if errors.Is(err, ErrAcquireTimeout) {
				s.logger.Debugf("Sensor %s frame wait timed out (%d/%d)", s.name, failures, s.cfg.FailureCeiling)
			} else {
				s.logger.Warnf("Sensor %s acquisition failed (%d/%d): %v", s.name, failures, s.cfg.FailureCeiling, err)
			}
			if failures >= s.cfg.FailureCeiling {
				s.logger.Errorf("Sensor %s exceeded %d consecutive failures; marking stream failed", s.name, s.cfg.FailureCeiling)
				s.fail()
				return
			}
			continue
		}

		failures = 0
		s.publish(frame)
	}
}

// publish stores frame in the single slot, counting an eviction if the prior
// frame was never read.
func (s *Stream) publish(frame *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil && s.frame.Seq > s.lastRead {
		s.drops++
	}
	s.seq++
	frame.Seq = s.seq
	s.frame = frame
}

// fail marks the stream failed and releases the device. Called only from the
// acquisition loop.
func (s *Stream) fail() {
	s.mu.Lock()
	s.status = StreamFailed
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := s.src.Close(); err != nil {
		s.logger.Warnf("Sensor %s close after failure: %v", s.name, err)
	}
}
