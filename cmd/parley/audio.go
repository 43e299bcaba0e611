package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/parley-ai/parley/pkg/core/voice"
)

const (
	// Capture runs at 16kHz for transcription; playback at 24kHz to match
	// the synthesis provider's PCM output.
	micSampleRate     = 16000
	speakerSampleRate = 24000
	audioChannels     = 1
)

// initAudio sets up microphone input and speaker output.
// Returns a mic reader, speaker writer, and cleanup function.
func initAudio() (*micReader, *speakerWriter, func(), error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init audio context: %w", err)
	}

	mic, err := newMicReader(malgoCtx.Context, micSampleRate, audioChannels)
	if err != nil {
		malgoCtx.Uninit()
		return nil, nil, nil, err
	}

	otoOpts := &oto.NewContextOptions{
		SampleRate:   speakerSampleRate,
		ChannelCount: audioChannels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(otoOpts)
	if err != nil {
		mic.Close()
		malgoCtx.Uninit()
		return nil, nil, nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	speaker := newSpeakerWriter(otoCtx)

	cleanup := func() {
		mic.Close()
		speaker.Close()
		malgoCtx.Uninit()
	}
	return mic, speaker, cleanup, nil
}

// micReader captures audio from the microphone as an io.Reader of raw PCM.
type micReader struct {
	device   *malgo.Device
	buf      []byte
	mu       sync.Mutex
	cond     *sync.Cond
	closed   bool
	canceled bool
	waiting  int
}

func newMicReader(ctx malgo.Context, sampleRate, channels int) (*micReader, error) {
	m := &micReader{
		buf: make([]byte, 0, sampleRate*2), // 1 second buffer
	}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, pInputSamples...)
			}
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return m, nil
}

// Read blocks until microphone data is available. After Close it returns
// io.EOF so a capture session finalizes instead of spinning.
func (m *micReader) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.waiting++
	for len(m.buf) == 0 && !m.closed && !m.canceled {
		m.cond.Wait()
	}
	m.waiting--
	if m.canceled {
		m.canceled = false
		return 0, voice.ErrReadCanceled
	}
	if m.closed && len(m.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

// CancelRead unblocks a pending Read with voice.ErrReadCanceled. The capture
// session calls it when its stream closes so the pump releases the mic
// instead of waiting for the next utterance. A cancel with no reader parked
// is dropped: it must not poison the next activation's first read.
func (m *micReader) CancelRead() {
	m.mu.Lock()
	if m.waiting > 0 {
		m.canceled = true
	}
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Drain discards audio captured while nobody was listening so speech uttered
// between activations does not replay into the next session.
func (m *micReader) Drain() {
	m.mu.Lock()
	m.buf = m.buf[:0]
	m.mu.Unlock()
}

func (m *micReader) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()

	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
}

// speakerWriter plays PCM audio through the speaker as an io.Writer sink.
type speakerWriter struct {
	otoCtx  *oto.Context
	player  *oto.Player
	buf     []byte
	mu      sync.Mutex
	cond    *sync.Cond
	playing bool
	closed  bool
}

func newSpeakerWriter(ctx *oto.Context) *speakerWriter {
	s := &speakerWriter{
		otoCtx: ctx,
		buf:    make([]byte, 0, speakerSampleRate*4), // 2 second buffer capacity
	}
	s.cond = sync.NewCond(&s.mu)
	// The player is created lazily on the first write so silence does not
	// hold the device.
	return s
}

func (s *speakerWriter) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.buf = append(s.buf, data...)

	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}

	s.cond.Signal()
	return len(data), nil
}

// Read implements io.Reader for oto.Player. oto pulls audio data for
// playback through it.
func (s *speakerWriter) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		// Return silence on close to let oto drain gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerWriter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	if s.player != nil {
		s.player.Close()
	}
}
