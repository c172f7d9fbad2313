package ports

import (
	"context"
	"errors"
	"time"

	"qrcheckin/internal/domain"
)

var (
	ErrCameraPermissionDenied = errors.New("camera permission denied")
	ErrCameraNotFound         = errors.New("camera not found")
	ErrStreamClosed           = errors.New("camera stream closed")
	ErrFrameNotReady          = errors.New("frame not ready")
)

// CameraConfig describes how the camera should be captured.
type CameraConfig struct {
	InputFormat       string
	Device            string
	EnvironmentDevice string
	FacingMode        string
	Width             int
	Height            int
	FrameRate         int
}

// VideoStream is an exclusively owned, open camera stream.
type VideoStream interface {
	// Ready reports whether a decodable frame is available.
	Ready() bool
	// Size returns the native frame dimensions.
	Size() (width int, height int)
	// Frame copies the latest RGBA frame into dst, which must hold width*height*4 bytes.
	Frame(dst []byte) error
	Stop() error
}

// Camera opens camera streams.
type Camera interface {
	// Supported reports whether the platform can capture video at all.
	Supported() bool
	Open(ctx context.Context, cfg CameraConfig) (VideoStream, error)
}

// InversionMode controls whether decoders also search luminance-inverted codes.
type InversionMode string

const (
	InversionDontInvert  InversionMode = "dontInvert"
	InversionAttemptBoth InversionMode = "attemptBoth"
)

// DecodeOptions tunes a single decode call.
type DecodeOptions struct {
	Inversion InversionMode
}

// Decoder extracts a QR payload from an RGBA pixel buffer.
type Decoder interface {
	Decode(pix []byte, width int, height int, opts DecodeOptions) (string, bool)
}

// FrameTicker paces the sampling loop. Each tick carries the monotonic time it fired at.
type FrameTicker interface {
	Ticks(ctx context.Context) <-chan time.Time
}

// ScannerEvents receives scanner output. Scanned must not call back into
// Deactivate synchronously.
type ScannerEvents interface {
	ScannerStateChanged(status domain.ScannerStatus)
	Scanned(payload string)
}

// CheckInBackend is the subset of the backend RPC surface used by check-in.
type CheckInBackend interface {
	CheckInByQRCode(ctx context.Context, eventID string, qrCode string) (domain.Attendee, error)
	ToggleCheckIn(ctx context.Context, attendeeID string) (domain.Attendee, error)
}

// PayloadNormalizer turns a decoded payload into a check-in code.
type PayloadNormalizer interface {
	Normalize(payload string) (string, error)
}

// ScanJournal records check-in attempts.
type ScanJournal interface {
	Record(ctx context.Context, record domain.ScanRecord) error
}

// CheckInEvents emits check-in outcomes to the UI.
type CheckInEvents interface {
	CheckInSucceeded(result domain.CheckInResult)
	CheckInFailed(code domain.ErrorCode, message string)
}
