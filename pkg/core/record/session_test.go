package record

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parley-ai/parley/pkg/core"
)

// fakeDevice counts open handles so tests can prove every exit path
// releases the device.
type fakeDevice struct {
	openErr   error
	openDelay time.Duration
	script    [][]byte
	failure   error

	handles atomic.Int32
	opens   atomic.Int32
}

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	d.opens.Add(1)
	if d.openDelay > 0 {
		time.Sleep(d.openDelay)
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.handles.Add(1)
	s := &fakeStream{device: d, chunks: make(chan []byte, len(d.script)+1), failure: d.failure}
	for _, chunk := range d.script {
		s.chunks <- chunk
	}
	if s.failure != nil {
		s.setErr(s.failure)
		close(s.chunks)
	}
	return s, nil
}

type fakeStream struct {
	device  *fakeDevice
	chunks  chan []byte
	failure error

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }

func (s *fakeStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *fakeStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() {
		s.device.handles.Add(-1)
		if s.failure == nil {
			close(s.chunks)
		}
	})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSessionRecordsInOrder(t *testing.T) {
	device := &fakeDevice{script: [][]byte{[]byte("head"), []byte("body"), []byte("tail")}}
	session := NewSession(device, testLogger())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := session.State(); got != StateRecording {
		t.Fatalf("state = %v, want RECORDING", got)
	}

	media, err := session.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if media == nil {
		t.Fatal("Stop returned nil media")
	}
	if !bytes.Equal(media.Data, []byte("headbodytail")) {
		t.Fatalf("media data = %q", media.Data)
	}
	if media.MIME != "video/webm" {
		t.Fatalf("media mime = %q", media.MIME)
	}
	if got := device.handles.Load(); got != 0 {
		t.Fatalf("device handles after stop = %d, want 0", got)
	}
	if got := session.State(); got != StateStopped {
		t.Fatalf("state after stop = %v, want STOPPED", got)
	}
}

func TestSessionStopWhenStoppedIsNoOp(t *testing.T) {
	session := NewSession(&fakeDevice{}, testLogger())

	media, err := session.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if media != nil {
		t.Fatalf("Stop on stopped session returned media: %+v", media)
	}
}

func TestSessionStartWhileRecordingIsNoOp(t *testing.T) {
	device := &fakeDevice{script: [][]byte{[]byte("a")}}
	session := NewSession(device, testLogger())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := device.opens.Load(); got != 1 {
		t.Fatalf("device opened %d times, want 1", got)
	}
	if _, err := session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSessionConcurrentStartOpensOneDevice(t *testing.T) {
	device := &fakeDevice{
		openDelay: 50 * time.Millisecond,
		script:    [][]byte{[]byte("frame")},
	}
	session := NewSession(device, testLogger())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = session.Start(context.Background())
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
	}

	if got := device.opens.Load(); got != 1 {
		t.Fatalf("device opened %d times, want 1", got)
	}
	if _, err := session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := device.handles.Load(); got != 0 {
		t.Fatalf("device handles = %d, want 0", got)
	}
}

func TestSessionDeniedDeviceStaysStopped(t *testing.T) {
	device := &fakeDevice{openErr: core.NewDeviceAccessDeniedError("camera busy", nil)}
	session := NewSession(device, testLogger())

	err := session.Start(context.Background())
	if !core.IsType(err, core.ErrDeviceAccessDenied) {
		t.Fatalf("Start error = %v, want device access denied", err)
	}
	if got := session.State(); got != StateStopped {
		t.Fatalf("state = %v, want STOPPED", got)
	}
	if session.LastError() == "" {
		t.Fatal("LastError is empty after denied device")
	}
	if got := device.handles.Load(); got != 0 {
		t.Fatalf("device handles = %d, want 0", got)
	}
}

func TestSessionCloseWhileRecordingReleasesDevice(t *testing.T) {
	device := &fakeDevice{script: [][]byte{[]byte("x")}}
	session := NewSession(device, testLogger())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := device.handles.Load(); got != 0 {
		t.Fatalf("device handles after close = %d, want 0", got)
	}
	if got := session.State(); got != StateStopped {
		t.Fatalf("state after close = %v, want STOPPED", got)
	}
	// Close again from the stopped state must be harmless.
	if err := session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSessionDeviceFailureMidRecording(t *testing.T) {
	device := &fakeDevice{
		script:  [][]byte{[]byte("partial")},
		failure: errors.New("device unplugged"),
	}
	session := NewSession(device, testLogger())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return session.State() == StateStopped })
	if session.LastError() == "" {
		t.Fatal("LastError is empty after device failure")
	}
	if got := device.handles.Load(); got != 0 {
		t.Fatalf("device handles after failure = %d, want 0", got)
	}
}

func TestSessionMediaSink(t *testing.T) {
	device := &fakeDevice{script: [][]byte{[]byte("clip")}}
	session := NewSession(device, testLogger())

	var got Media
	var called bool
	session.OnMedia(func(m Media) {
		called = true
		got = m
	})

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !called {
		t.Fatal("media sink was not invoked")
	}
	if !bytes.Equal(got.Data, []byte("clip")) {
		t.Fatalf("sink media data = %q", got.Data)
	}
}

func TestFFmpegDeviceMissingBinary(t *testing.T) {
	device := NewFFmpegDeviceArgs("definitely-not-ffmpeg-anywhere", nil)
	_, err := device.Open(context.Background())
	if !core.IsType(err, core.ErrDeviceAccessDenied) {
		t.Fatalf("Open error = %v, want device access denied", err)
	}
}
