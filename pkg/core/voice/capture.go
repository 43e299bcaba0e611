// Package voice provides the speech capture session and synthesis player
// that the conversation orchestrator drives.
package voice

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/parley-ai/parley/pkg/core"
	"github.com/parley-ai/parley/pkg/core/voice/stt"
)

// captureFrameBytes is how much source audio is pumped per send: 100ms of
// 16kHz mono 16-bit PCM.
const captureFrameBytes = 3200

// ErrReadCanceled is returned by a source Read aborted through CancelRead.
var ErrReadCanceled = errors.New("voice: read canceled")

// ReadCanceler is implemented by audio sources whose Read can be unblocked
// early. The capture session uses it to release a pump that would otherwise
// sit in Read waiting for a silent source after the stream has closed.
type ReadCanceler interface {
	// CancelRead makes the pending (or next) Read return ErrReadCanceled.
	CancelRead()
}

// CaptureSession captures one spoken utterance and transcribes it. Interim
// updates arrive on Updates; the final result triggers an internal stop and is
// delivered on Final. One session captures one utterance; start a new session
// for the next activation.
type CaptureSession struct {
	provider stt.Provider
	source   io.Reader
	opts     stt.StreamOptions

	mu      sync.Mutex
	started bool
	stream  *stt.Stream
	err     error

	updates chan stt.TranscriptDelta
	final   chan string
	done    chan struct{}
}

// NewCaptureSession creates a capture session reading raw PCM audio from
// source. The provider's availability is checked at Start.
func NewCaptureSession(provider stt.Provider, source io.Reader, opts stt.StreamOptions) *CaptureSession {
	return &CaptureSession{
		provider: provider,
		source:   source,
		opts:     opts,
		updates:  make(chan stt.TranscriptDelta, 100),
		final:    make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// Start begins capture. It fails with an unsupported-capability error when no
// speech-to-text provider is usable. Calling Start on a running session is a
// no-op.
func (c *CaptureSession) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	if c.provider == nil || !c.provider.Available() {
		return core.NewUnsupportedCapabilityError("no speech recognition capability is available")
	}

	stream, err := c.provider.NewStream(ctx, c.opts)
	if err != nil {
		return core.NewCaptureError("start speech capture", err)
	}
	c.stream = stream
	c.started = true

	go c.pumpLoop(stream)
	go c.deltaLoop(stream)
	return nil
}

// Updates returns the channel of transcript updates, interim and final. It is
// closed when the session stops; check Err afterwards.
func (c *CaptureSession) Updates() <-chan stt.TranscriptDelta {
	return c.updates
}

// Final delivers the accumulated transcript once a final result arrives. The
// channel stays empty when capture is stopped or fails first.
func (c *CaptureSession) Final() <-chan string {
	return c.final
}

// Err returns the capture failure, if any. Valid after Updates closes.
func (c *CaptureSession) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done returns a channel that's closed when the session has fully stopped.
func (c *CaptureSession) Done() <-chan struct{} {
	return c.done
}

// Stop cancels capture and releases the underlying stream. Safe to call
// multiple times, including on a session that never started.
func (c *CaptureSession) Stop() {
	c.mu.Lock()
	stream := c.stream
	started := c.started
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if !started {
		// Nothing is running; settle the channels ourselves.
		c.mu.Lock()
		if !c.started {
			c.started = true
			close(c.updates)
			close(c.done)
		}
		c.mu.Unlock()
	}
}

// pumpLoop feeds source audio to the stream until the source drains or the
// stream closes.
func (c *CaptureSession) pumpLoop(stream *stt.Stream) {
	if canceler, ok := c.source.(ReadCanceler); ok {
		go func() {
			<-stream.Done()
			canceler.CancelRead()
		}()
	}

	buf := make([]byte, captureFrameBytes)
	for {
		select {
		case <-stream.Done():
			return
		default:
		}

		n, err := c.source.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return
			}
		}
		if errors.Is(err, ErrReadCanceled) {
			return
		}
		if err != nil {
			// Source drained; ask the provider to finalize what it heard.
			_ = stream.Finalize()
			return
		}
	}
}

// deltaLoop forwards transcript updates and performs the auto-stop on the
// final result.
func (c *CaptureSession) deltaLoop(stream *stt.Stream) {
	defer func() {
		c.mu.Lock()
		if c.err == nil {
			if streamErr := stream.Err(); streamErr != nil {
				c.err = core.NewCaptureError("speech capture failed", streamErr)
			}
		}
		c.mu.Unlock()
		close(c.updates)
		close(c.done)
	}()

	for delta := range stream.Deltas() {
		// A slow consumer drops updates rather than stalling capture.
		select {
		case c.updates <- delta:
		default:
		}

		if delta.IsFinal {
			c.final <- delta.Text
			stream.Close()
			return
		}
	}
}
