package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"qrcheckin/internal/domain"
	"qrcheckin/internal/ports"
)

const (
	DefaultDebounce      = 1500 * time.Millisecond
	DefaultFrameInterval = time.Second / 60
)

const (
	MessageCameraUnsupported = "Camera is not supported in this browser."
	MessagePermissionDenied  = "Camera permission denied. Please allow camera access and try again."
	MessageNoCamera          = "No camera found on this device."
	messageStartFailed       = "Failed to start camera: "
	messageStreamEnded       = "Camera stream ended: "
)

// ScanObserver receives per-frame counters. Implementations must be cheap.
type ScanObserver interface {
	FrameSampled()
	FrameDecoded()
	ScanEmitted()
	ScanSuppressed()
	AcquisitionFailed(reason string)
}

// ScannerConfig controls the camera scanner.
type ScannerConfig struct {
	Camera   ports.CameraConfig
	Debounce time.Duration
	Ticker   ports.FrameTicker
	Observer ScanObserver
	Logger   *zerolog.Logger
}

// Scanner owns one camera at a time, samples its frames and emits debounced
// QR payloads.
type Scanner struct {
	camera  ports.Camera
	decoder ports.Decoder
	events  ports.ScannerEvents
	cfg     ScannerConfig
	logger  zerolog.Logger

	emitMu sync.Mutex
	// acquireMu serializes camera opens so at most one stream exists at a time.
	acquireMu sync.Mutex

	mu       sync.Mutex
	state    scannerState
	errMsg   string
	lastScan time.Time
	closed   bool
}

func NewScanner(camera ports.Camera, decoder ports.Decoder, events ports.ScannerEvents, cfg ScannerConfig) *Scanner {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Ticker == nil {
		cfg.Ticker = NewIntervalTicker(DefaultFrameInterval)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "scanner").Logger()
	}
	return &Scanner{
		camera:  camera,
		decoder: decoder,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		state:   idleState(),
	}
}

// Activate requests the camera and starts sampling. It is a no-op while a
// session is acquiring or scanning, and after Close. Failures are reported
// through Status().ErrorMessage.
func (s *Scanner) Activate(ctx context.Context) domain.ScannerStatus {
	s.mu.Lock()
	if s.closed || s.state.phase != phaseIdle {
		status := s.state.status(s.errMsg)
		s.mu.Unlock()
		return status
	}

	s.errMsg = ""
	if !s.camera.Supported() {
		s.errMsg = MessageCameraUnsupported
		status := s.state.status(s.errMsg)
		s.mu.Unlock()

		s.cfg.Observer.AcquisitionFailed("unsupported")
		s.logger.Warn().Msg("camera capture is not supported on this platform")
		s.notify()
		return status
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	session := &scanSession{cancel: cancel}
	s.state = acquiringState(session)
	status := s.state.status(s.errMsg)
	s.mu.Unlock()

	s.logger.Debug().Msg("requesting camera")
	s.notify()
	go s.acquire(attemptCtx, session)
	return status
}

// Deactivate stops the sampling loop and releases the camera. Safe to call
// from any state and more than once.
func (s *Scanner) Deactivate() {
	s.mu.Lock()
	session := s.state.session
	if session == nil {
		s.mu.Unlock()
		return
	}
	s.state = idleState()
	stream, done := session.stream, session.done
	s.mu.Unlock()

	session.cancel()
	if done != nil {
		<-done
	}
	s.stopStream(stream)
	s.logger.Debug().Msg("scanner deactivated")
	s.notify()
}

// Close tears the scanner down for good.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Deactivate()
}

// Status returns the current scanner status.
func (s *Scanner) Status() domain.ScannerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.status(s.errMsg)
}

func (s *Scanner) acquire(ctx context.Context, session *scanSession) {
	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.mu.Lock()
	stale := s.state.session != session
	s.mu.Unlock()
	if stale {
		s.logger.Debug().Msg("acquisition superseded before camera open")
		return
	}

	stream, err := s.camera.Open(ctx, s.cfg.Camera)
	if err == nil && stream == nil {
		err = errors.New("camera returned no stream")
	}

	s.mu.Lock()
	if s.state.session != session {
		s.mu.Unlock()
		s.stopStream(stream)
		s.logger.Debug().Msg("camera granted after teardown; released")
		return
	}
	if err != nil {
		s.state = idleState()
		s.errMsg = acquisitionMessage(err)
		s.mu.Unlock()

		session.cancel()
		s.stopStream(stream)
		s.cfg.Observer.AcquisitionFailed(acquisitionReason(err))
		s.logger.Warn().Err(err).Msg("camera acquisition failed")
		s.notify()
		return
	}

	session.stream = stream
	session.done = make(chan struct{})
	ticks := s.cfg.Ticker.Ticks(ctx)
	s.mu.Unlock()

	s.logger.Info().Msg("camera stream open")
	s.notify()
	go s.sampleFrames(ctx, session, ticks)
}

// promote moves an acquiring session to scanning once its first frame is ready.
func (s *Scanner) promote(session *scanSession) {
	s.mu.Lock()
	if s.state.session != session || s.state.phase != phaseAcquiring {
		s.mu.Unlock()
		return
	}
	s.state = scanningState(session)
	s.mu.Unlock()
	s.notify()
}

// admit applies the debounce window and reports whether a decode at now may
// be emitted.
func (s *Scanner) admit(session *scanSession, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.session != session {
		return false
	}
	if !s.lastScan.IsZero() && now.Sub(s.lastScan) <= s.cfg.Debounce {
		return false
	}
	s.lastScan = now
	return true
}

// endSession is called by the sampling loop when it stops on its own.
func (s *Scanner) endSession(session *scanSession, errorMessage string) {
	s.mu.Lock()
	if s.state.session != session {
		s.mu.Unlock()
		return
	}
	s.state = idleState()
	if errorMessage != "" {
		s.errMsg = errorMessage
	}
	s.mu.Unlock()

	session.cancel()
	s.stopStream(session.stream)
	s.notify()
}

func (s *Scanner) stopStream(stream ports.VideoStream) {
	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		s.logger.Debug().Err(err).Msg("camera stream stop")
	}
}

// notify publishes the latest status; emitMu keeps listeners from observing
// transitions out of order.
func (s *Scanner) notify() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.events.ScannerStateChanged(s.Status())
}

func acquisitionMessage(err error) string {
	switch {
	case errors.Is(err, ports.ErrCameraPermissionDenied):
		return MessagePermissionDenied
	case errors.Is(err, ports.ErrCameraNotFound):
		return MessageNoCamera
	default:
		return messageStartFailed + err.Error()
	}
}

func acquisitionReason(err error) string {
	switch {
	case errors.Is(err, ports.ErrCameraPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ports.ErrCameraNotFound):
		return "not_found"
	default:
		return "other"
	}
}

type nopObserver struct{}

func (nopObserver) FrameSampled()            {}
func (nopObserver) FrameDecoded()            {}
func (nopObserver) ScanEmitted()             {}
func (nopObserver) ScanSuppressed()          {}
func (nopObserver) AcquisitionFailed(string) {}
