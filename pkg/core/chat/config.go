package chat

import (
	"time"

	"github.com/parley-ai/parley/pkg/core/llm"
)

// VoiceState represents the current state of the voice turn cycle.
type VoiceState int

const (
	// StateIdle is the resting state between turns.
	StateIdle VoiceState = iota
	// StateListening is when speech capture is active.
	StateListening
	// StateAwaitingCompletion is when the assistant reply is being generated.
	StateAwaitingCompletion
	// StateSpeaking is when the reply is being synthesized and played.
	StateSpeaking
)

// String returns a human-readable state name.
func (s VoiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateAwaitingCompletion:
		return "AWAITING_COMPLETION"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Mode selects the conversation persona. Modes differ only in system prompt
// and sampling temperature.
type Mode int

const (
	// ModeCasual is a friendly open-ended conversation partner.
	ModeCasual Mode = iota
	// ModeInterview is a professional interviewer persona.
	ModeInterview
)

const casualSystemPrompt = `You are a friendly and engaging AI assistant having a natural conversation.
Keep your responses conversational, warm, and relatable while maintaining professionalism.
Use a natural speaking style with appropriate pauses and intonation. Feel free to ask follow-up
questions to keep the conversation flowing naturally.`

const interviewSystemPrompt = `You are a professional interviewer conducting a structured conversation.
Ask one clear question at a time, listen carefully, and follow up on the candidate's answers.
Keep your tone courteous and focused, and keep your responses brief so the candidate does most of the talking.`

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeCasual:
		return "casual"
	case ModeInterview:
		return "interview"
	default:
		return "unknown"
	}
}

// SystemPrompt returns the system prompt for the mode.
func (m Mode) SystemPrompt() string {
	if m == ModeInterview {
		return interviewSystemPrompt
	}
	return casualSystemPrompt
}

// Temperature returns the sampling temperature for the mode.
func (m Mode) Temperature() float32 {
	if m == ModeInterview {
		return 0.6
	}
	return 0.8
}

// Greeting is the assistant turn every conversation opens with.
const Greeting = "Hi there! I'm your AI assistant. How can I help you today?"

// Config holds the orchestrator settings.
type Config struct {
	Mode     Mode
	Greeting string
	Model    string
	Voice    string

	MaxTokens int

	// CompletionTimeout bounds the reply generation; expiry surfaces as a
	// completion failure. SynthesisTimeout bounds playback the same way.
	CompletionTimeout time.Duration
	SynthesisTimeout  time.Duration
}

// DefaultConfig returns the standard conversation settings.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeCasual,
		Greeting:          Greeting,
		Model:             llm.DefaultModel,
		Voice:             "Charlie",
		MaxTokens:         500,
		CompletionTimeout: 30 * time.Second,
		SynthesisTimeout:  60 * time.Second,
	}
}

// completeOptions maps the config to per-request completion options.
func (c Config) completeOptions() llm.CompleteOptions {
	return llm.CompleteOptions{
		Model:       c.Model,
		Temperature: c.Mode.Temperature(),
		MaxTokens:   c.MaxTokens,
	}
}
