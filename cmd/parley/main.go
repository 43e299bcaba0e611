// Package main runs a voice conversation with an AI counterpart from the
// terminal: microphone capture is transcribed, the reply is generated and
// spoken, and the session can record camera and microphone alongside.
//
// Usage:
//
//	go run ./cmd/parley
//
// Environment variables:
//
//	OPENAI_API_KEY      - seeds the completion key store
//	ELEVENLABS_API_KEY  - seeds the synthesis key store
//	DEEPGRAM_API_KEY    - enables speech capture
//
// Commands:
//
//	speak    - start listening for one utterance
//	stop     - cancel the current capture
//	mute     - toggle reply playback
//	log      - print the conversation so far
//	quit     - end the session
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parley-ai/parley/pkg/core/chat"
	"github.com/parley-ai/parley/pkg/core/creds"
	"github.com/parley-ai/parley/pkg/core/llm"
	"github.com/parley-ai/parley/pkg/core/record"
	"github.com/parley-ai/parley/pkg/core/types"
	"github.com/parley-ai/parley/pkg/core/voice"
	"github.com/parley-ai/parley/pkg/core/voice/stt"
	"github.com/parley-ai/parley/pkg/core/voice/tts"
)

type options struct {
	credsPath string
	mode      string
	model     string
	voice     string
	record    bool
	recordOut string
	debug     bool
}

func main() {
	_ = godotenv.Load()

	var opt options
	flag.StringVar(&opt.credsPath, "creds", defaultCredsPath(), "Path to the API key store")
	flag.StringVar(&opt.mode, "mode", "casual", "Conversation mode: casual or interview")
	flag.StringVar(&opt.model, "model", "", "Completion model override")
	flag.StringVar(&opt.voice, "voice", "", "Synthesis voice override")
	flag.BoolVar(&opt.record, "record", false, "Record camera and microphone to a webm file")
	flag.StringVar(&opt.recordOut, "record-out", "session.webm", "Recording output path")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(opt, logger); err != nil {
		logger.Error("session failed", "error", err)
		os.Exit(1)
	}
}

func run(opt options, logger *slog.Logger) error {
	store := creds.NewFileStore(opt.credsPath)
	gate := creds.NewGate(store)
	seedKeysFromEnv(store)
	if !gate.Present() {
		if err := promptForKeys(gate); err != nil {
			return fmt.Errorf("collect API keys: %w", err)
		}
	}
	credentials, err := gate.Get()
	if err != nil {
		return err
	}

	config := chat.DefaultConfig()
	switch opt.mode {
	case "casual":
	case "interview":
		config.Mode = chat.ModeInterview
	default:
		return fmt.Errorf("unknown mode %q (want casual or interview)", opt.mode)
	}
	if opt.model != "" {
		config.Model = opt.model
	}
	if opt.voice != "" {
		config.Voice = opt.voice
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	mic, speaker, cleanupAudio, err := initAudio()
	if err != nil {
		return err
	}
	defer cleanupAudio()

	sttProvider := stt.NewDeepgram(os.Getenv("DEEPGRAM_API_KEY"))
	ttsProvider := tts.NewElevenLabs(credentials.SynthesisKey)
	player := voice.NewPlayer(ttsProvider, speaker, tts.SynthesizeOptions{Voice: config.Voice})
	completer := llm.NewClient(gate)

	factory := func() chat.Capture {
		// Discard audio buffered while idle so only speech from this
		// activation onward is transcribed.
		mic.Drain()
		return voice.NewCaptureSession(sttProvider, mic, stt.StreamOptions{SampleRate: micSampleRate})
	}

	orchestrator := chat.NewOrchestrator(config, gate, completer, player, factory, logger)
	defer orchestrator.Close()

	// The recording session runs on its own lifecycle, next to the
	// conversation, and must release the device on every way out.
	var recorder *record.Session
	if opt.record && consentToRecording() {
		recorder = record.NewSession(record.NewFFmpegDevice(), logger)
		recorder.OnMedia(func(m record.Media) {
			if err := os.WriteFile(opt.recordOut, m.Data, 0o644); err != nil {
				logger.Error("write recording", "error", err)
				return
			}
			fmt.Printf("[RECORDED] %s (%d bytes, %s)\n", opt.recordOut, len(m.Data), m.Duration.Round(time.Second))
		})
		if err := recorder.Start(ctx); err != nil {
			logger.Warn("recording unavailable", "error", err)
			recorder = nil
		}
	}
	defer func() {
		if recorder != nil {
			if _, err := recorder.Stop(); err != nil {
				logger.Warn("stop recording", "error", err)
			}
			recorder.Close()
		}
	}()

	go renderEvents(orchestrator, opt.debug)

	fmt.Printf("[assistant] %s\n", config.Greeting)
	fmt.Println("Commands: speak, stop, mute, log, quit")

	inputs := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			inputs <- strings.TrimSpace(scanner.Text())
		}
		close(inputs)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case input, ok := <-inputs:
			if !ok {
				return nil
			}
			switch strings.ToLower(input) {
			case "":
			case "speak":
				if err := orchestrator.Listen(ctx); err != nil {
					fmt.Printf("[ERROR] %v\n", err)
				}
			case "stop":
				orchestrator.StopListening()
			case "mute":
				orchestrator.SetMuted(!orchestrator.Muted())
				if orchestrator.Muted() {
					fmt.Println("[MUTED] replies will not be spoken")
				} else {
					fmt.Println("[UNMUTED]")
				}
			case "log":
				for _, turn := range orchestrator.Turns() {
					fmt.Printf("[%s] %s\n", turn.Role, turn.Content)
				}
			case "quit", "q":
				return nil
			default:
				fmt.Println("Commands: speak, stop, mute, log, quit")
			}
		}
	}
}

// renderEvents prints orchestrator events the way the conversation pane
// rendered bubbles and toasts.
func renderEvents(o *chat.Orchestrator, debug bool) {
	for event := range o.Events() {
		switch e := event.(type) {
		case *chat.TranscriptDeltaEvent:
			if !e.IsFinal {
				fmt.Printf("\r... %s", e.Delta)
			} else {
				fmt.Printf("\r[you] %s\n", e.Delta)
			}
		case *chat.TurnAppendedEvent:
			if e.Turn.Role == types.RoleAssistant {
				fmt.Printf("[assistant] %s\n", e.Turn.Content)
			}
		case *chat.SpeechSkippedEvent:
			fmt.Println("[MUTED] reply not spoken")
		case *chat.CredentialsRequiredEvent:
			fmt.Printf("[KEYS NEEDED] %s\n", e.Message)
		case *chat.SessionErrorEvent:
			fmt.Printf("[ERROR] %s: %s\n", e.Code, e.Message)
		case *chat.StateChangedEvent:
			if debug {
				fmt.Printf("[state] %s -> %s\n", e.From, e.To)
			}
		}
	}
}

// seedKeysFromEnv copies keys from the environment into the store so a .env
// file is enough to skip the prompt.
func seedKeysFromEnv(store creds.Store) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		_ = store.Set(creds.KeyCompletion, key)
	}
	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		_ = store.Set(creds.KeySynthesis, key)
	}
}

// promptForKeys collects the two service keys interactively and persists
// them.
func promptForKeys(gate *creds.Gate) error {
	fmt.Println("API keys are required before the conversation can start.")
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("OpenAI API key: ")
	completion, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("ElevenLabs API key: ")
	synthesis, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	return gate.Set(creds.Credentials{
		CompletionKey: strings.TrimSpace(completion),
		SynthesisKey:  strings.TrimSpace(synthesis),
	})
}

// consentToRecording shows the recording notice and waits for agreement.
func consentToRecording() bool {
	fmt.Println("This session will record video and audio. The recording starts")
	fmt.Println("after you agree and stops when the session ends.")
	fmt.Print("Type 'yes' to consent: ")

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

func defaultCredsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley_keys.json"
	}
	return filepath.Join(home, ".parley", "keys.json")
}
