// Package tts provides text-to-speech synthesis.
package tts

import (
	"context"
	"sync"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Available reports whether the provider can synthesize at all.
	Available() bool

	// Synthesize converts text to audio in one shot.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)

	// SynthesizeStream converts text to audio delivered in chunks so playback
	// can start before generation finishes.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string // Voice selector
	Language   string // Language code
	Format     string // Output format: "pcm" or "mp3"
	SampleRate int    // Sample rate: 16000, 22050, 24000, 44100
}

// Synthesis is the result of one-shot synthesis.
type Synthesis struct {
	Audio  []byte // Audio data
	Format string // Audio format
}

// SynthesisStream provides streaming audio output.
type SynthesisStream struct {
	chunks chan []byte
	err    error
	errMu  sync.Mutex
	done   chan struct{}
	once   sync.Once
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks. It is closed when synthesis
// completes or fails; check Err afterwards.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err blocks until the stream settles and returns its error, if any.
func (s *SynthesisStream) Err() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close abandons the stream.
func (s *SynthesisStream) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

// Internal methods for implementations

// Send delivers an audio chunk. Returns false if the consumer closed the
// stream.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// SetError records the failure that ended the stream.
func (s *SynthesisStream) SetError(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// FinishSending closes the chunk channel and settles the stream.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
	s.once.Do(func() {
		close(s.done)
	})
}
