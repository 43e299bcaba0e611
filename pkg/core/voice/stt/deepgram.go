package stt

import (
	"context"
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

const deepgramDefaultWSBase = "wss://api.deepgram.com/v1/listen"

// DeepgramProvider transcribes speech over Deepgram's streaming WebSocket API.
type DeepgramProvider struct {
	apiKey    string
	wsBaseURL string
}

// NewDeepgram creates a Deepgram provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: deepgramDefaultWSBase,
	}
}

// WithWSBaseURL overrides the WebSocket endpoint. Used by tests.
func (d *DeepgramProvider) WithWSBaseURL(base string) *DeepgramProvider {
	if d == nil {
		return d
	}
	base = strings.TrimSpace(base)
	if base != "" {
		d.wsBaseURL = base
	}
	return d
}

// Name returns the provider identifier.
func (d *DeepgramProvider) Name() string {
	return "deepgram"
}

// Available reports whether the provider is configured with an API key.
func (d *DeepgramProvider) Available() bool {
	return d != nil && d.apiKey != ""
}

// NewStream opens a streaming transcription session.
//
// Deepgram marks each transcript segment with is_final when the segment text
// will no longer change, and with speech_final when it detected the end of
// the utterance. The stream assembles segment-final text internally and emits
// a single IsFinal delta carrying the whole utterance on speech_final;
// everything before that arrives as interim deltas with the partial utterance.
func (d *DeepgramProvider) NewStream(ctx context.Context, opts StreamOptions) (*Stream, error) {
	if !d.Available() {
		return nil, fmt.Errorf("deepgram api key is required")
	}

	wsURL, err := buildDeepgramWSURL(d.wsBaseURL, opts)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	s := NewStream()
	var writeMu sync.Mutex

	s.SendFunc = func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.BinaryMessage, data)
	}
	s.FinalizeFunc = func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
	}
	s.CloseFunc = func() error {
		writeMu.Lock()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		return conn.Close()
	}

	go d.readLoop(ctx, conn, s)

	return s, nil
}

func (d *DeepgramProvider) readLoop(ctx context.Context, conn *websocket.Conn, s *Stream) {
	defer s.FinishDeltas()

	// Text already committed by segment-final results.
	var committed []string

	for {
		select {
		case <-ctx.Done():
			s.SetError(ctx.Err())
			return
		case <-s.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.closed.Load() {
				s.SetError(err)
			}
			return
		}

		var msg deepgramResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Results":
			segment := ""
			if len(msg.Channel.Alternatives) > 0 {
				segment = strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
			}

			utterance := strings.TrimSpace(strings.Join(append(append([]string{}, committed...), segment), " "))
			if msg.SpeechFinal {
				if !s.PushDelta(TranscriptDelta{Text: utterance, IsFinal: true}) {
					return
				}
				committed = committed[:0]
				continue
			}
			if msg.IsFinal && segment != "" {
				committed = append(committed, segment)
			}
			if utterance != "" {
				if !s.PushDelta(TranscriptDelta{Text: utterance}) {
					return
				}
			}

		case "Metadata":
			// Sent once on connect and once on close.
			continue

		case "Error":
			s.SetError(fmt.Errorf("deepgram: %s", msg.Description))
			return
		}
	}
}

type deepgramResponse struct {
	Type        string `json:"type"` // "Results", "Metadata", "Error"
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"` // Error detail
}

func buildDeepgramWSURL(base string, opts StreamOptions) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}

	q := u.Query()

	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	q.Set("model", model)

	language := opts.Language
	if language == "" {
		language = "en"
	}
	q.Set("language", language)

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	q.Set("encoding", encoding)

	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))

	q.Set("interim_results", "true")
	q.Set("smart_format", "true")

	u.RawQuery = q.Encode()
	return u.String(), nil
}
