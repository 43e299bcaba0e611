package record

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/parley-ai/parley/pkg/core"
)

const ffmpegChunkBytes = 32 * 1024

// FFmpegDevice captures camera and microphone through an ffmpeg subprocess
// and produces a webm (VP8 + Opus) byte stream on stdout.
type FFmpegDevice struct {
	binary string
	args   []string
}

// NewFFmpegDevice creates a device using the platform default inputs.
func NewFFmpegDevice() *FFmpegDevice {
	return &FFmpegDevice{binary: "ffmpeg"}
}

// NewFFmpegDeviceArgs creates a device with explicit ffmpeg arguments. The
// arguments must produce a webm stream on stdout.
func NewFFmpegDeviceArgs(binary string, args []string) *FFmpegDevice {
	return &FFmpegDevice{binary: binary, args: args}
}

// Open starts the ffmpeg subprocess. A missing binary or an unsupported
// platform is a device-access failure.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	if _, err := exec.LookPath(d.binary); err != nil {
		return nil, core.NewDeviceAccessDeniedError("ffmpeg is required for video capture (install ffmpeg and ensure it is in PATH)", err)
	}
	args := d.args
	if len(args) == 0 {
		platformArgs, err := captureFFmpegArgs(runtime.GOOS)
		if err != nil {
			return nil, core.NewDeviceAccessDeniedError(err.Error(), nil)
		}
		args = platformArgs
	}

	cmd := exec.CommandContext(ctx, d.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, core.NewDeviceAccessDeniedError("open ffmpeg stdout", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, core.NewDeviceAccessDeniedError("start ffmpeg capture", err)
	}

	stream := &processStream{
		cmd:    cmd,
		stdout: stdout,
		chunks: make(chan []byte, 16),
	}
	go stream.readLoop()
	return stream, nil
}

func captureFFmpegArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-framerate", "30", "-i", "0:0",
			"-c:v", "libvpx", "-b:v", "1M",
			"-c:a", "libopus",
			"-f", "webm", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "v4l2", "-framerate", "30", "-i", "/dev/video0",
			"-f", "pulse", "-i", "default",
			"-c:v", "libvpx", "-b:v", "1M",
			"-c:a", "libopus",
			"-f", "webm", "-",
		}, nil
	default:
		return nil, fmt.Errorf("video capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

type processStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	chunks chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
	errMu     sync.Mutex
	err       error
}

func (s *processStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *processStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *processStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *processStream) readLoop() {
	defer close(s.chunks)
	buf := make([]byte, ffmpegChunkBytes)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			if err != io.EOF && !s.closed.Load() {
				s.setErr(fmt.Errorf("read ffmpeg output: %w", err))
			}
			return
		}
	}
}

// Close kills the subprocess and reaps it. Safe to call multiple times.
func (s *processStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
		_ = s.stdout.Close()
	})
	return nil
}
