package voice

import (
	"context"
	"io"

	"github.com/parley-ai/parley/pkg/core"
	"github.com/parley-ai/parley/pkg/core/voice/tts"
)

// Player renders assistant text as audible speech. It synthesizes through the
// configured provider and writes audio to the sink as chunks arrive, blocking
// until playback settles. The player holds no queue: the orchestrator's state
// machine guarantees at most one Speak in flight.
type Player struct {
	provider tts.Provider
	sink     io.Writer
	opts     tts.SynthesizeOptions
}

// NewPlayer creates a player writing synthesized audio to sink.
func NewPlayer(provider tts.Provider, sink io.Writer, opts tts.SynthesizeOptions) *Player {
	return &Player{provider: provider, sink: sink, opts: opts}
}

// Speak synthesizes text and plays it to completion. Every failure is a
// synthesis error; callers treat it as non-fatal to the conversation turn.
func (p *Player) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if p.provider == nil || !p.provider.Available() {
		return core.NewSynthesisError("no synthesis provider is available", nil)
	}

	stream, err := p.provider.SynthesizeStream(ctx, text, p.opts)
	if err != nil {
		return core.NewSynthesisError("start synthesis", err)
	}

	for chunk := range stream.Chunks() {
		if _, err := p.sink.Write(chunk); err != nil {
			stream.Close()
			return core.NewSynthesisError("write audio to sink", err)
		}
	}
	if err := stream.Err(); err != nil {
		return core.NewSynthesisError("synthesis stream failed", err)
	}
	return nil
}
