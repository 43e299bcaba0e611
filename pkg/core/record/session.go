// Package record manages the camera/microphone recording that runs alongside
// the conversation. Its lifecycle is independent of the turn state machine.
package record

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-ai/parley/pkg/core"
)

// State is the recording session state.
type State int

const (
	// StateStopped means no device is held.
	StateStopped State = iota
	// StateRecording means the device is open and chunks are being buffered.
	StateRecording
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRecording:
		return "RECORDING"
	default:
		return "UNKNOWN"
	}
}

// Media is a finalized recording: a single browser-playable container.
type Media struct {
	Data     []byte
	MIME     string
	Duration time.Duration
}

// Stream is a live capture handle producing incremental media chunks.
// Close must release the underlying device; it is the owner's only handle on
// it.
type Stream interface {
	// Chunks returns the channel of media chunks. It is closed when capture
	// ends for any reason.
	Chunks() <-chan []byte

	// Close releases the device. Safe to call multiple times.
	Close() error

	// Err returns the failure that ended capture, if any.
	Err() error
}

// Device is the media capture capability.
type Device interface {
	// Open acquires the camera/microphone and starts producing chunks.
	Open(ctx context.Context) (Stream, error)
}

// Session records from a Device and buffers the produced chunks in order.
// The device handle is released on every exit path: Stop, a mid-capture
// device failure, and Close (the process-teardown path).
type Session struct {
	device  Device
	logger  *slog.Logger
	onMedia func(Media)

	mu        sync.Mutex
	state     State
	starting  bool
	stream    Stream
	chunks    [][]byte
	startedAt time.Time
	lastErr   string
	wg        sync.WaitGroup
}

// NewSession creates a stopped session over the given device.
func NewSession(device Device, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{device: device, logger: logger}
}

// OnMedia registers a sink that receives the finalized media after Stop.
// Persistence of the media is the sink's business, not the session's.
func (s *Session) OnMedia(fn func(Media)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMedia = fn
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRecording reports whether the device is currently held.
func (s *Session) IsRecording() bool {
	return s.State() == StateRecording
}

// LastError returns the most recent recording error message, if any.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start acquires the device and begins buffering chunks. A denied device
// leaves the session stopped with the error recorded. Starting a recording
// session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRecording || s.starting {
		s.mu.Unlock()
		return nil
	}
	// Claim the session before releasing the lock so a concurrent Start
	// cannot open a second device handle while Open is in flight.
	s.starting = true
	s.mu.Unlock()

	stream, err := s.device.Open(ctx)
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.lastErr = err.Error()
		s.mu.Unlock()
		if core.IsType(err, core.ErrDeviceAccessDenied) {
			return err
		}
		return core.NewDeviceAccessDeniedError("open capture device", err)
	}

	s.mu.Lock()
	s.starting = false
	s.state = StateRecording
	s.stream = stream
	s.chunks = nil
	s.startedAt = time.Now()
	s.lastErr = ""
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("recording started")
	go s.collect(stream)
	return nil
}

// collect buffers chunks until the stream ends. A stream that dies on its
// own (device unplugged, process killed) stops the session and records the
// failure.
func (s *Session) collect(stream Stream) {
	defer s.wg.Done()

	for chunk := range stream.Chunks() {
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		s.mu.Lock()
		s.chunks = append(s.chunks, buf)
		s.mu.Unlock()
	}

	stream.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == stream && s.state == StateRecording {
		s.state = StateStopped
		s.stream = nil
		if err := stream.Err(); err != nil {
			s.lastErr = err.Error()
			s.logger.Error("recording ended unexpectedly", "error", err)
		}
	}
}

// Stop finalizes the buffered chunks into a single media object and releases
// the device. Calling Stop on a stopped session is a no-op returning nil.
func (s *Session) Stop() (*Media, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, nil
	}
	stream := s.stream
	duration := time.Since(s.startedAt)
	s.state = StateStopped
	s.stream = nil
	s.mu.Unlock()

	if err := stream.Close(); err != nil {
		s.logger.Warn("release capture device", "error", err)
	}
	s.wg.Wait()

	s.mu.Lock()
	var size int
	for _, chunk := range s.chunks {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for _, chunk := range s.chunks {
		data = append(data, chunk...)
	}
	s.chunks = nil
	sink := s.onMedia
	s.mu.Unlock()

	media := &Media{Data: data, MIME: "video/webm", Duration: duration}
	s.logger.Info("recording stopped", "bytes", len(media.Data), "duration", media.Duration)
	if sink != nil {
		sink(*media)
	}
	return media, nil
}

// Close releases the device without finalizing media. This is the teardown
// path: it must be safe from any state and never leave the device open.
func (s *Session) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.state = StateStopped
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	err := stream.Close()
	s.wg.Wait()
	return err
}
