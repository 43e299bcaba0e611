// Package stt provides speech-to-text capture.
package stt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStreamClosed is returned when sending to a closed stream.
var ErrStreamClosed = errors.New("stt: stream closed")

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Available reports whether the provider can transcribe at all.
	// Callers check this once, before starting a capture session.
	Available() bool

	// NewStream opens a streaming transcription session. Audio is sent
	// incrementally via Stream.SendAudio and updates arrive on Stream.Deltas.
	NewStream(ctx context.Context, opts StreamOptions) (*Stream, error)
}

// StreamOptions configures a transcription stream.
type StreamOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language code (default: "en")
	Encoding   string // Raw audio encoding (default: "linear16")
	SampleRate int    // Audio sample rate in Hz (default: 16000)
}

// TranscriptDelta is a transcript update. Interim updates carry the partial
// utterance so far; the final update carries the whole utterance.
type TranscriptDelta struct {
	Text    string // Transcript text
	IsFinal bool   // True when the provider detected end of utterance
}

// Stream is a live transcription session. Provider implementations feed it
// via the push methods; consumers send audio and range over Deltas.
type Stream struct {
	deltas    chan TranscriptDelta
	err       error
	errMu     sync.Mutex
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// For implementations to use
	SendFunc     func(data []byte) error
	FinalizeFunc func() error
	CloseFunc    func() error
}

// NewStream creates an unconnected stream for a provider implementation to
// drive.
func NewStream() *Stream {
	return &Stream{
		deltas: make(chan TranscriptDelta, 100),
		done:   make(chan struct{}),
	}
}

// SendAudio sends a chunk of raw audio to the provider.
func (s *Stream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if s.SendFunc != nil {
		return s.SendFunc(data)
	}
	return nil
}

// Finalize flushes buffered audio and asks the provider to emit a final
// transcript for whatever was heard so far.
func (s *Stream) Finalize() error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if s.FinalizeFunc != nil {
		return s.FinalizeFunc()
	}
	return nil
}

// Deltas returns the channel of transcript updates. It is closed when the
// stream ends.
func (s *Stream) Deltas() <-chan TranscriptDelta {
	return s.deltas
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Done returns a channel that's closed when the stream is done.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close releases the stream. Safe to call multiple times.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.CloseFunc != nil {
			err = s.CloseFunc()
		}
		close(s.done)
	})
	return err
}

// Internal methods for implementations

// PushDelta delivers a transcript update. Returns false if the stream is
// closed.
func (s *Stream) PushDelta(d TranscriptDelta) bool {
	select {
	case s.deltas <- d:
		return true
	case <-s.done:
		return false
	}
}

// SetError records the error that ended the stream. The first error wins.
func (s *Stream) SetError(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// FinishDeltas closes the delta channel. Called by the implementation's read
// loop when no more updates will arrive.
func (s *Stream) FinishDeltas() {
	close(s.deltas)
}
