package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"qrcheckin/internal/ports"
)

const (
	defaultInputFormat = "v4l2"
	defaultDevice      = "/dev/video0"
	defaultWidth       = 640
	defaultHeight      = 480
	defaultFrameRate   = 30
	facingEnvironment  = "environment"
)

// FFMPEGCamera captures raw RGBA frames from a video device using ffmpeg.
type FFMPEGCamera struct {
	command     string
	lookPath    func(file string) (string, error)
	startupWait time.Duration
}

func NewFFMPEGCamera(command string) *FFMPEGCamera {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCamera{
		command:     command,
		lookPath:    exec.LookPath,
		startupWait: 250 * time.Millisecond,
	}
}

// Supported reports whether the ffmpeg binary can be found.
func (c *FFMPEGCamera) Supported() bool {
	_, err := c.lookPath(c.command)
	return err == nil
}

func (c *FFMPEGCamera) Open(ctx context.Context, cfg ports.CameraConfig) (ports.VideoStream, error) {
	cfg = withDefaults(cfg)
	device := selectDevice(cfg)

	if cfg.InputFormat == defaultInputFormat {
		if err := probeDevice(device); err != nil {
			return nil, err
		}
	}

	size := strconv.Itoa(cfg.Width) + "x" + strconv.Itoa(cfg.Height)
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-i", device,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", size,
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyEarlyExit(err, stderr.String())
	case <-time.After(c.startupWait):
	}

	stream := &ffmpegStream{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
		width:   cfg.Width,
		height:  cfg.Height,
	}
	go stream.readFrames()
	return stream, nil
}

func withDefaults(cfg ports.CameraConfig) ports.CameraConfig {
	if cfg.InputFormat == "" {
		cfg.InputFormat = defaultInputFormat
	}
	if cfg.Device == "" {
		cfg.Device = defaultDevice
	}
	if cfg.FacingMode == "" {
		cfg.FacingMode = facingEnvironment
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = defaultFrameRate
	}
	return cfg
}

// selectDevice prefers the environment-facing device when requested and
// present, falling back to the default device.
func selectDevice(cfg ports.CameraConfig) string {
	if cfg.FacingMode != facingEnvironment || cfg.EnvironmentDevice == "" {
		return cfg.Device
	}
	if cfg.InputFormat == defaultInputFormat {
		if _, err := os.Stat(cfg.EnvironmentDevice); err != nil {
			return cfg.Device
		}
	}
	return cfg.EnvironmentDevice
}

func probeDevice(device string) error {
	f, err := os.Open(device)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ports.ErrCameraNotFound, device)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", ports.ErrCameraPermissionDenied, device)
	default:
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
}

func classifyEarlyExit(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "permission denied"):
		return fmt.Errorf("%w: %s", ports.ErrCameraPermissionDenied, detail)
	case strings.Contains(lower, "no such file or directory"), strings.Contains(lower, "no such device"):
		return fmt.Errorf("%w: %s", ports.ErrCameraNotFound, detail)
	case err != nil:
		return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
	default:
		return errors.New("ffmpeg exited before capture started")
	}
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *syncBuffer

	process *os.Process
	waitErr <-chan error

	width  int
	height int

	mu      sync.Mutex
	latest  []byte
	ready   bool
	readErr error
	stopped bool

	stopOnce sync.Once
	stopErr  error
}

// readFrames double-buffers complete frames so Frame always copies a whole one.
func (s *ffmpegStream) readFrames() {
	frameSize := s.width * s.height * 4
	buf := make([]byte, frameSize)
	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		spare := s.latest
		s.latest = buf
		s.ready = true
		s.mu.Unlock()

		if spare == nil {
			spare = make([]byte, frameSize)
		}
		buf = spare
	}
}

// Ready is also true once the stream has failed so the caller observes the
// failure through Frame.
func (s *ffmpegStream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready || s.readErr != nil
}

func (s *ffmpegStream) Size() (int, int) {
	return s.width, s.height
}

func (s *ffmpegStream) Frame(dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ports.ErrStreamClosed
	}
	if s.readErr != nil {
		detail := s.readErr.Error()
		// Wait closes the pipe once ffmpeg exits, so a closed pipe is an exit too.
		if errors.Is(s.readErr, io.EOF) || errors.Is(s.readErr, io.ErrUnexpectedEOF) || errors.Is(s.readErr, os.ErrClosed) {
			detail = "ffmpeg exited"
			if stderr := stringsTrimSpaceSafe(s.stderr.String()); stderr != "" {
				detail += ": " + stderr
			}
		}
		return fmt.Errorf("%w: %s", ports.ErrStreamClosed, detail)
	}
	if !s.ready {
		return ports.ErrFrameNotReady
	}
	if len(dst) < len(s.latest) {
		return fmt.Errorf("frame buffer too small: have %d bytes, need %d", len(dst), len(s.latest))
	}
	copy(dst, s.latest)
	return nil
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil {
			if detail := stringsTrimSpaceSafe(s.stderr.String()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

// syncBuffer is a bytes.Buffer safe for the exec copier and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
