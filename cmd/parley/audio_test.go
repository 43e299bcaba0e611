package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley-ai/parley/pkg/core/voice"
)

// deviceless mic reader: the buffer and condition variable work without a
// capture device, which is all these tests exercise.
func newTestMicReader() *micReader {
	m := &micReader{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// feed mimics the capture callback delivering a block of samples.
func (m *micReader) feed(samples []byte) {
	m.mu.Lock()
	if !m.closed {
		m.buf = append(m.buf, samples...)
	}
	m.mu.Unlock()
	m.cond.Signal()
}

func TestMicReaderDrainDiscardsIdleAudio(t *testing.T) {
	mic := newTestMicReader()

	mic.feed([]byte("spoken while idle"))
	mic.Drain()
	mic.feed([]byte("fresh"))

	buf := make([]byte, 64)
	n, err := mic.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "fresh" {
		t.Fatalf("Read = %q, want only audio fed after Drain", got)
	}
}

func TestMicReaderCancelReadUnblocks(t *testing.T) {
	mic := newTestMicReader()

	readErr := make(chan error, 1)
	go func() {
		_, err := mic.Read(make([]byte, 64))
		readErr <- err
	}()

	// Give the reader a moment to park, then cancel it.
	time.Sleep(10 * time.Millisecond)
	mic.CancelRead()

	select {
	case err := <-readErr:
		if !errors.Is(err, voice.ErrReadCanceled) {
			t.Fatalf("Read error = %v, want ErrReadCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read still blocked after CancelRead")
	}
}

func TestMicReaderCancelWithoutReaderIsDropped(t *testing.T) {
	mic := newTestMicReader()

	// No Read is pending; the cancel must not poison the next one.
	mic.CancelRead()
	mic.feed([]byte("hello"))

	buf := make([]byte, 64)
	n, err := mic.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "hello" {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}
}
