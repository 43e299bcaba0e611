package chat

import (
	"github.com/parley-ai/parley/pkg/core/types"
)

// Event is the interface for all orchestrator events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted when the voice state changes.
type StateChangedEvent struct {
	From VoiceState `json:"from"`
	To   VoiceState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// TranscriptDeltaEvent is emitted as real-time transcription updates arrive.
type TranscriptDeltaEvent struct {
	Delta   string `json:"delta"`
	IsFinal bool   `json:"is_final,omitempty"`
}

func (e *TranscriptDeltaEvent) EventType() string { return "transcript.delta" }

// TurnAppendedEvent is emitted when a turn is added to the conversation log.
type TurnAppendedEvent struct {
	Turn types.Turn `json:"turn"`
}

func (e *TurnAppendedEvent) EventType() string { return "turn.appended" }

// CredentialsRequiredEvent is emitted when a turn is attempted without the
// required API keys.
type CredentialsRequiredEvent struct {
	Message string `json:"message"`
}

func (e *CredentialsRequiredEvent) EventType() string { return "credentials.required" }

// SessionErrorEvent is emitted when a turn fails. Code is the failure kind
// ("capture", "completion", "synthesis").
type SessionErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SessionErrorEvent) EventType() string { return "session.error" }

// SpeechSkippedEvent is emitted when a reply passes through the speaking
// phase without playback because the session is muted.
type SpeechSkippedEvent struct {
	Text string `json:"text"`
}

func (e *SpeechSkippedEvent) EventType() string { return "speech.skipped" }

// SessionClosedEvent is emitted when the orchestrator shuts down.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }
