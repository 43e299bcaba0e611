package stt

import (
	"errors"
	"testing"
	"time"
)

func TestStream_PushAndReceive(t *testing.T) {
	s := NewStream()

	if !s.PushDelta(TranscriptDelta{Text: "hello"}) {
		t.Fatal("push to open stream should succeed")
	}
	if !s.PushDelta(TranscriptDelta{Text: "hello world", IsFinal: true}) {
		t.Fatal("push to open stream should succeed")
	}
	s.FinishDeltas()

	var got []TranscriptDelta
	for d := range s.Deltas() {
		got = append(got, d)
	}
	if len(got) != 2 {
		t.Fatalf("received %d deltas, want 2", len(got))
	}
	if got[0].IsFinal || !got[1].IsFinal {
		t.Errorf("finality = %v/%v, want false/true", got[0].IsFinal, got[1].IsFinal)
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	closeCalls := 0
	s := NewStream()
	s.CloseFunc = func() error {
		closeCalls++
		return nil
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if closeCalls != 1 {
		t.Errorf("CloseFunc called %d times, want 1", closeCalls)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() should be closed after Close()")
	}
}

func TestStream_SendAfterClose(t *testing.T) {
	s := NewStream()
	s.Close()

	if err := s.SendAudio([]byte{0, 0}); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("SendAudio after close = %v, want ErrStreamClosed", err)
	}
	if err := s.Finalize(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Finalize after close = %v, want ErrStreamClosed", err)
	}
}

func TestStream_PushAfterCloseReturnsFalse(t *testing.T) {
	s := NewStream()
	s.Close()

	if s.PushDelta(TranscriptDelta{Text: "late"}) {
		t.Error("push after close should report false")
	}
}

func TestStream_FirstErrorWins(t *testing.T) {
	s := NewStream()
	first := errors.New("first")
	s.SetError(first)
	s.SetError(errors.New("second"))

	if got := s.Err(); !errors.Is(got, first) {
		t.Errorf("Err() = %v, want %v", got, first)
	}
}

func TestStream_SendForwardsToProvider(t *testing.T) {
	var sent [][]byte
	s := NewStream()
	s.SendFunc = func(data []byte) error {
		sent = append(sent, data)
		return nil
	}

	if err := s.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if len(sent) != 1 || len(sent[0]) != 2 {
		t.Errorf("provider received %v", sent)
	}
}
