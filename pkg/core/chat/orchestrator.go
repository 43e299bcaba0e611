// Package chat orchestrates the voice conversation: speech capture, reply
// generation, and speech playback, serialized as one turn at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/parley-ai/parley/pkg/core"
	"github.com/parley-ai/parley/pkg/core/creds"
	"github.com/parley-ai/parley/pkg/core/llm"
	"github.com/parley-ai/parley/pkg/core/types"
	"github.com/parley-ai/parley/pkg/core/voice"
	"github.com/parley-ai/parley/pkg/core/voice/stt"
)

// Completer generates the assistant reply for a user turn.
type Completer interface {
	Complete(ctx context.Context, system string, history []types.Turn, userText string, opts llm.CompleteOptions) (types.Turn, error)
}

// Speaker synthesizes and plays a reply, blocking until playback settles.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Capture is one speech capture activation. voice.CaptureSession is the
// production implementation.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	Updates() <-chan stt.TranscriptDelta
	Final() <-chan string
	Err() error
	Done() <-chan struct{}
}

var _ Capture = (*voice.CaptureSession)(nil)

// CaptureFactory produces a fresh capture session for each activation.
type CaptureFactory func() Capture

// Orchestrator drives the voice turn cycle. At most one turn is in flight;
// Listen while a turn is active is rejected. The recording session is not
// owned here: its lifecycle is independent.
type Orchestrator struct {
	config     Config
	gate       *creds.Gate
	completer  Completer
	speaker    Speaker
	newCapture CaptureFactory
	logger     *slog.Logger

	conversation *Conversation

	mu      sync.Mutex
	state   VoiceState
	capture Capture

	muted atomic.Bool

	events   chan Event
	evMu     sync.Mutex
	evClosed bool
	done     chan struct{}
	closed   atomic.Bool
}

// NewOrchestrator creates an idle orchestrator. The conversation log is
// seeded with the configured greeting.
func NewOrchestrator(config Config, gate *creds.Gate, completer Completer, speaker Speaker, factory CaptureFactory, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:       config,
		gate:         gate,
		completer:    completer,
		speaker:      speaker,
		newCapture:   factory,
		logger:       logger,
		conversation: NewConversation(config.Greeting),
		state:        StateIdle,
		events:       make(chan Event, 100),
		done:         make(chan struct{}),
	}
}

// State returns the current voice state.
func (o *Orchestrator) State() VoiceState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Events returns the channel for receiving orchestrator events.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Turns returns a snapshot of the conversation log.
func (o *Orchestrator) Turns() []types.Turn {
	return o.conversation.Turns()
}

// SetMuted toggles playback muting. The value is read once per turn, at the
// speaking transition; a mid-playback toggle affects the next turn.
func (o *Orchestrator) SetMuted(muted bool) {
	o.muted.Store(muted)
}

// Muted reports the mute flag.
func (o *Orchestrator) Muted() bool {
	return o.muted.Load()
}

// Listen starts a capture activation. It is rejected while a turn is in
// flight and blocked until both API keys are present.
func (o *Orchestrator) Listen(ctx context.Context) error {
	if o.closed.Load() {
		return errors.New("orchestrator closed")
	}

	if _, err := o.gate.Get(); err != nil {
		o.emit(&CredentialsRequiredEvent{Message: err.Error()})
		return err
	}

	o.mu.Lock()
	if o.state != StateIdle || o.capture != nil {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot start listening in state %s", state)
	}
	capture := o.newCapture()
	o.capture = capture
	o.mu.Unlock()

	if err := capture.Start(ctx); err != nil {
		o.mu.Lock()
		o.capture = nil
		o.mu.Unlock()
		return err
	}

	o.setState(StateListening)
	go o.turnLoop(ctx, capture)
	return nil
}

// StopListening cancels the current capture before a final transcript. The
// session returns to idle without a completion call.
func (o *Orchestrator) StopListening() {
	o.mu.Lock()
	capture := o.capture
	state := o.state
	o.mu.Unlock()

	if state != StateListening || capture == nil {
		return
	}
	capture.Stop()
}

// Close shuts the orchestrator down: any in-flight capture is cancelled and
// the event channel is closed. Safe to call multiple times.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil
	}

	o.mu.Lock()
	capture := o.capture
	o.capture = nil
	o.state = StateIdle
	o.mu.Unlock()

	if capture != nil {
		capture.Stop()
	}
	close(o.done)

	o.emit(&SessionClosedEvent{Reason: "closed"})
	o.evMu.Lock()
	o.evClosed = true
	close(o.events)
	o.evMu.Unlock()
	return nil
}

// turnLoop follows one capture activation through to idle.
func (o *Orchestrator) turnLoop(ctx context.Context, capture Capture) {
	var finalText string
	var gotFinal bool

	updates := capture.Updates()
	for updates != nil {
		select {
		case <-o.done:
			capture.Stop()
			return
		case delta, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			o.emit(&TranscriptDeltaEvent{Delta: delta.Text, IsFinal: delta.IsFinal})
		case text := <-capture.Final():
			finalText = text
			gotFinal = true
		}
	}

	if !gotFinal {
		// The final result may have landed between the last update and the
		// channel close.
		select {
		case text := <-capture.Final():
			finalText = text
			gotFinal = true
		default:
		}
	}

	o.mu.Lock()
	if o.capture == capture {
		o.capture = nil
	}
	o.mu.Unlock()

	if o.closed.Load() {
		return
	}

	if err := capture.Err(); err != nil {
		o.logger.Error("speech capture failed", "error", err)
		o.emit(&SessionErrorEvent{Code: errorCode(err, core.ErrCapture), Message: err.Error()})
		o.setState(StateIdle)
		return
	}
	if !gotFinal || strings.TrimSpace(finalText) == "" {
		// Stopped before a final transcript, or the utterance was empty.
		o.setState(StateIdle)
		return
	}

	o.completeTurn(ctx, finalText)
}

// completeTurn runs the completion and playback phases for a final
// transcript.
func (o *Orchestrator) completeTurn(ctx context.Context, userText string) {
	o.setState(StateAwaitingCompletion)

	// History is the log before this turn; the user turn is appended before
	// the completion call so a failure still preserves what was said.
	history := o.conversation.Turns()
	o.appendTurn(types.NewTurn(types.RoleUser, userText))

	completeCtx, cancel := context.WithTimeout(ctx, o.config.CompletionTimeout)
	reply, err := o.completer.Complete(completeCtx, o.config.Mode.SystemPrompt(), history, userText, o.config.completeOptions())
	cancel()
	if err != nil {
		o.logger.Error("completion failed", "error", err)
		o.emit(&SessionErrorEvent{Code: errorCode(err, core.ErrCompletion), Message: err.Error()})
		o.setState(StateIdle)
		return
	}
	o.appendTurn(reply)

	o.setState(StateSpeaking)
	if o.muted.Load() {
		o.emit(&SpeechSkippedEvent{Text: reply.Content})
	} else {
		speakCtx, cancel := context.WithTimeout(ctx, o.config.SynthesisTimeout)
		if err := o.speaker.Speak(speakCtx, reply.Content); err != nil {
			// Playback failure is non-fatal: the text reply stands.
			o.logger.Warn("speech playback failed", "error", err)
			o.emit(&SessionErrorEvent{Code: errorCode(err, core.ErrSynthesis), Message: err.Error()})
		}
		cancel()
	}

	o.setState(StateIdle)
}

// appendTurn adds a turn to the log and announces it.
func (o *Orchestrator) appendTurn(turn types.Turn) {
	o.conversation.Append(turn)
	o.emit(&TurnAppendedEvent{Turn: turn})
}

// setState updates the voice state and emits an event.
func (o *Orchestrator) setState(newState VoiceState) {
	o.mu.Lock()
	oldState := o.state
	o.state = newState
	o.mu.Unlock()

	if oldState != newState {
		o.logger.Debug("state changed", "from", oldState, "to", newState)
		o.emit(&StateChangedEvent{From: oldState, To: newState})
	}
}

// emit sends an event to the events channel, dropping it when the consumer
// is behind or the channel is closed.
func (o *Orchestrator) emit(event Event) {
	o.evMu.Lock()
	defer o.evMu.Unlock()
	if o.evClosed {
		return
	}
	select {
	case o.events <- event:
	default:
	}
}

// errorCode extracts the error taxonomy type, falling back when err is not a
// typed error.
func errorCode(err error, fallback core.ErrorType) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return string(ce.Type)
	}
	return string(fallback)
}
