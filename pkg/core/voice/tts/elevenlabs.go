package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsDefaultAPIBase = "https://api.elevenlabs.io"
	elevenLabsDefaultWSBase  = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	elevenLabsDefaultModel   = "eleven_flash_v2_5"
)

// ElevenLabsProvider synthesizes speech with the ElevenLabs API: plain HTTP
// for one-shot synthesis, WebSocket stream-input for chunked delivery.
type ElevenLabsProvider struct {
	apiKey     string
	httpClient *http.Client
	apiBaseURL string
	wsBaseURL  string
}

// NewElevenLabs creates an ElevenLabs provider.
func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return NewElevenLabsWithClient(apiKey, nil)
}

// NewElevenLabsWithClient creates a provider with a custom HTTP client.
func NewElevenLabsWithClient(apiKey string, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
		apiBaseURL: elevenLabsDefaultAPIBase,
		wsBaseURL:  elevenLabsDefaultWSBase,
	}
}

// WithAPIBaseURL overrides the HTTP endpoint. Used by tests.
func (e *ElevenLabsProvider) WithAPIBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimSpace(base); base != "" {
		e.apiBaseURL = base
	}
	return e
}

// WithWSBaseURL overrides the WebSocket endpoint. Used by tests.
func (e *ElevenLabsProvider) WithWSBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBaseURL = base
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// Available reports whether the provider is configured with an API key.
func (e *ElevenLabsProvider) Available() bool {
	return e != nil && e.apiKey != ""
}

// Synthesize converts text to audio with a single HTTP request.
func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if !e.Available() {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice selector is required")
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimSuffix(e.apiBaseURL, "/"), url.PathEscape(voiceID), outputFormat(opts))

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": elevenLabsDefaultModel,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs synthesize (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return &Synthesis{Audio: audio, Format: formatName(opts.Format)}, nil
}

// SynthesizeStream converts text to audio over the stream-input WebSocket so
// playback can begin before the full reply is rendered.
func (e *ElevenLabsProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if !e.Available() {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice selector is required")
	}

	wsURL, err := buildElevenLabsWSURL(e.wsBaseURL, voiceID, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	var writeMu sync.Mutex
	send := func(payload map[string]any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(payload)
	}

	// Handshake, then the whole utterance, then flush.
	if err := send(map[string]any{"text": " ", "voice_id": voiceID}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := send(map[string]any{"text": strings.TrimSpace(text) + " "}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := send(map[string]any{"text": "", "flush": true}); err != nil {
		conn.Close()
		return nil, err
	}

	stream := NewSynthesisStream()
	go func() {
		defer stream.FinishSending()
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				stream.SetError(ctx.Err())
				return
			case <-stream.done:
				return
			default:
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					stream.SetError(err)
				}
				return
			}
			var msg elevenLabsStreamMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Error != "" {
				stream.SetError(fmt.Errorf("elevenlabs: %s", msg.Error))
				return
			}
			if msg.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err == nil && len(audio) > 0 {
					if !stream.Send(audio) {
						return
					}
				}
			}
			if msg.IsFinal {
				return
			}
		}
	}()

	return stream, nil
}

type elevenLabsStreamMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
}

func buildElevenLabsWSURL(base, voiceID string, opts SynthesizeOptions) (string, error) {
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", elevenLabsDefaultModel)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", outputFormat(opts))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// outputFormat maps options to an ElevenLabs output_format value.
func outputFormat(opts SynthesizeOptions) string {
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 24000
	}
	switch opts.Format {
	case "mp3":
		return fmt.Sprintf("mp3_%d_128", sampleRate)
	default:
		return fmt.Sprintf("pcm_%d", sampleRate)
	}
}

func formatName(format string) string {
	if format == "mp3" {
		return "mp3"
	}
	return "pcm"
}
