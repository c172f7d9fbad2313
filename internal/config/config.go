package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the check-in desk.
type Config struct {
	Backend BackendConfig
	Camera  CameraConfig
	Scanner ScannerConfig
	Payload PayloadConfig
	Journal JournalConfig
	Feed    FeedConfig
	Log     LogConfig
}

type BackendConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type CameraConfig struct {
	Command           string
	InputFormat       string
	Device            string
	EnvironmentDevice string
	FacingMode        string
	Width             int
	Height            int
	FrameRate         int
}

type ScannerConfig struct {
	Debounce      time.Duration
	FrameInterval time.Duration
	TryHarder     bool
	EventID       string
}

type PayloadConfig struct {
	RulesPath string
	MaxLength int
}

type JournalConfig struct {
	Enabled bool
	Path    string
}

type FeedConfig struct {
	Enabled        bool
	Addr           string
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from environment variables, the optional file
// named by QRCHECKIN_CONFIG and defaults, in that order of precedence.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	var file FileConfig
	if path := strings.TrimSpace(os.Getenv("QRCHECKIN_CONFIG")); path != "" {
		file, err = LoadFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	defaultRules := filepath.Join(home, ".config", "qrcheckin", "payload.rules")
	defaultJournal := filepath.Join(home, ".local", "share", "qrcheckin", "scans.db")

	cfg := Config{
		Backend: BackendConfig{
			BaseURL: envOrDefault("QRCHECKIN_BACKEND_URL", file.Backend.BaseURL),
			Token:   envOrDefault("QRCHECKIN_BACKEND_TOKEN", file.Backend.Token),
			Timeout: time.Duration(envOrDefaultInt("QRCHECKIN_BACKEND_TIMEOUT_MS", orInt(file.Backend.TimeoutMS, 10000))) * time.Millisecond,
		},
		Camera: CameraConfig{
			Command:           envOrDefault("QRCHECKIN_FFMPEG_COMMAND", firstNonEmpty(file.Camera.Command, "ffmpeg")),
			InputFormat:       envOrDefault("QRCHECKIN_CAMERA_INPUT_FORMAT", firstNonEmpty(file.Camera.InputFormat, "v4l2")),
			Device:            envOrDefault("QRCHECKIN_CAMERA_DEVICE", firstNonEmpty(file.Camera.Device, "/dev/video0")),
			EnvironmentDevice: envOrDefault("QRCHECKIN_CAMERA_ENVIRONMENT_DEVICE", file.Camera.EnvironmentDevice),
			FacingMode:        envOrDefault("QRCHECKIN_CAMERA_FACING_MODE", firstNonEmpty(file.Camera.FacingMode, "environment")),
			Width:             envOrDefaultInt("QRCHECKIN_CAMERA_WIDTH", orInt(file.Camera.Width, 640)),
			Height:            envOrDefaultInt("QRCHECKIN_CAMERA_HEIGHT", orInt(file.Camera.Height, 480)),
			FrameRate:         envOrDefaultInt("QRCHECKIN_CAMERA_FRAME_RATE", orInt(file.Camera.FrameRate, 30)),
		},
		Scanner: ScannerConfig{
			Debounce:      time.Duration(envOrDefaultInt("QRCHECKIN_SCAN_DEBOUNCE_MS", orInt(file.Scanner.DebounceMS, 1500))) * time.Millisecond,
			FrameInterval: time.Duration(envOrDefaultInt("QRCHECKIN_SCAN_INTERVAL_MS", orInt(file.Scanner.IntervalMS, 16))) * time.Millisecond,
			TryHarder:     envOrDefaultBool("QRCHECKIN_DECODER_TRY_HARDER", orBool(file.Scanner.TryHarder, false)),
			EventID:       envOrDefault("QRCHECKIN_EVENT_ID", file.Scanner.EventID),
		},
		Payload: PayloadConfig{
			RulesPath: envOrDefault("QRCHECKIN_PAYLOAD_RULES_FILE", firstNonEmpty(file.Payload.RulesPath, defaultRules)),
			MaxLength: envOrDefaultInt("QRCHECKIN_PAYLOAD_MAX_LENGTH", orInt(file.Payload.MaxLength, 512)),
		},
		Journal: JournalConfig{
			Enabled: envOrDefaultBool("QRCHECKIN_JOURNAL_ENABLED", orBool(file.Journal.Enabled, true)),
			Path:    envOrDefault("QRCHECKIN_JOURNAL_PATH", firstNonEmpty(file.Journal.Path, defaultJournal)),
		},
		Feed: FeedConfig{
			Enabled:        envOrDefaultBool("QRCHECKIN_FEED_ENABLED", orBool(file.Feed.Enabled, false)),
			Addr:           envOrDefault("QRCHECKIN_FEED_ADDR", firstNonEmpty(file.Feed.Addr, "127.0.0.1:8765")),
			AllowedOrigins: envOrDefaultList("QRCHECKIN_FEED_ORIGINS", file.Feed.AllowedOrigins),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envOrDefault("QRCHECKIN_LOG_LEVEL", firstNonEmpty(file.Log.Level, "info"))),
			Format: strings.ToLower(envOrDefault("QRCHECKIN_LOG_FORMAT", firstNonEmpty(file.Log.Format, "json"))),
		},
	}

	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 10 * time.Second
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		cfg.Camera.Width, cfg.Camera.Height = 640, 480
	}
	if cfg.Camera.FrameRate <= 0 {
		cfg.Camera.FrameRate = 30
	}
	if cfg.Scanner.Debounce <= 0 {
		cfg.Scanner.Debounce = 1500 * time.Millisecond
	}
	if cfg.Scanner.FrameInterval <= 0 {
		cfg.Scanner.FrameInterval = 16 * time.Millisecond
	}
	if cfg.Payload.MaxLength <= 0 {
		cfg.Payload.MaxLength = 512
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func orInt(value int, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func orBool(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
