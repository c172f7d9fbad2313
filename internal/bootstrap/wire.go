package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"qrcheckin/internal/backend"
	"qrcheckin/internal/camera"
	"qrcheckin/internal/config"
	"qrcheckin/internal/decoder"
	"qrcheckin/internal/domain"
	"qrcheckin/internal/feed"
	"qrcheckin/internal/journal"
	"qrcheckin/internal/logging"
	"qrcheckin/internal/metrics"
	"qrcheckin/internal/payload"
	"qrcheckin/internal/ports"
	"qrcheckin/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Scanner    *usecase.Scanner
	Dispatcher *usecase.CheckInDispatcher
	Router     *usecase.ScanCheckIn
	Backend    *backend.Client
	Journal    *journal.Store
	Metrics    *metrics.Collector
	Hub        *feed.Hub
	Feed       *feed.Server
	Logger     *zerolog.Logger
	Config     config.Config
}

// Build wires all dependencies for the current runtime. scannerEvents and
// checkInEvents are the owner's sinks; either may be nil.
func Build(ctx context.Context, scannerEvents ports.ScannerEvents, checkInEvents ports.CheckInEvents) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	normalizer, err := payload.NewNormalizer(cfg.Payload.RulesPath, cfg.Payload.MaxLength)
	if err != nil {
		return Services{}, err
	}

	collector := metrics.NewCollector(nil)

	var store *journal.Store
	var scanJournal ports.ScanJournal
	if cfg.Journal.Enabled {
		store, err = journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return Services{}, fmt.Errorf("open scan journal: %w", err)
		}
		scanJournal = store
	}

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, http.DefaultClient)

	hub := feed.NewHub(cfg.Feed.AllowedOrigins, &logger)

	dispatcher := usecase.NewCheckInDispatcher(
		client,
		normalizer,
		scanJournal,
		checkInFanout{owner: checkInEvents, hub: hub, collector: collector},
		&logger,
	)
	router := usecase.NewScanCheckIn(ctx, dispatcher, cfg.Scanner.EventID)

	scanner := usecase.NewScanner(
		camera.NewFFMPEGCamera(cfg.Camera.Command),
		decoder.NewZXingDecoder(cfg.Scanner.TryHarder),
		scannerFanout{owner: scannerEvents, hub: hub, collector: collector, router: router},
		usecase.ScannerConfig{
			Camera: ports.CameraConfig{
				InputFormat:       cfg.Camera.InputFormat,
				Device:            cfg.Camera.Device,
				EnvironmentDevice: cfg.Camera.EnvironmentDevice,
				FacingMode:        cfg.Camera.FacingMode,
				Width:             cfg.Camera.Width,
				Height:            cfg.Camera.Height,
				FrameRate:         cfg.Camera.FrameRate,
			},
			Debounce: cfg.Scanner.Debounce,
			Ticker:   usecase.NewIntervalTicker(cfg.Scanner.FrameInterval),
			Observer: collector,
			Logger:   &logger,
		},
	)

	services := Services{
		Scanner:    scanner,
		Dispatcher: dispatcher,
		Router:     router,
		Backend:    client,
		Journal:    store,
		Metrics:    collector,
		Hub:        hub,
		Logger:     &logger,
		Config:     cfg,
	}

	if cfg.Feed.Enabled {
		handler := feed.NewRouter(hub, scanner, collector, feed.Config{
			Addr:           cfg.Feed.Addr,
			AllowedOrigins: cfg.Feed.AllowedOrigins,
		})
		services.Feed = feed.NewServer(cfg.Feed.Addr, handler, hub, &logger)
	}

	logger.Info().
		Str("device", cfg.Camera.Device).
		Bool("journal", cfg.Journal.Enabled).
		Bool("feed", cfg.Feed.Enabled).
		Int("payload_rules", normalizer.RuleCount()).
		Msg("services built")

	return services, nil
}

// Close releases the camera, drains queued check-ins and closes storage and
// the feed. It is safe to call on a partially built graph.
func (s Services) Close(ctx context.Context) error {
	var errs []error
	if s.Scanner != nil {
		s.Scanner.Close()
	}
	if s.Router != nil {
		s.Router.Close()
	}
	if s.Feed != nil {
		if err := s.Feed.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("shutdown feed: %w", err))
		}
	} else if s.Hub != nil {
		s.Hub.Close()
	}
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// scannerFanout delivers scanner output to the owner, the live feed, metrics
// and the scan router. The owner is notified first.
type scannerFanout struct {
	owner     ports.ScannerEvents
	hub       *feed.Hub
	collector *metrics.Collector
	router    *usecase.ScanCheckIn
}

func (f scannerFanout) ScannerStateChanged(status domain.ScannerStatus) {
	if f.owner != nil {
		f.owner.ScannerStateChanged(status)
	}
	f.collector.ObserveStatus(status)
	f.hub.ScannerStateChanged(status)
	f.router.ScannerStateChanged(status)
}

func (f scannerFanout) Scanned(payload string) {
	if f.owner != nil {
		f.owner.Scanned(payload)
	}
	f.hub.Scanned(payload)
	f.router.Scanned(payload)
}

type checkInFanout struct {
	owner     ports.CheckInEvents
	hub       *feed.Hub
	collector *metrics.Collector
}

func (f checkInFanout) CheckInSucceeded(result domain.CheckInResult) {
	if f.owner != nil {
		f.owner.CheckInSucceeded(result)
	}
	f.collector.CheckInSucceeded(result)
	f.hub.CheckInSucceeded(result)
}

func (f checkInFanout) CheckInFailed(code domain.ErrorCode, message string) {
	if f.owner != nil {
		f.owner.CheckInFailed(code, message)
	}
	f.collector.CheckInFailed(code, message)
	f.hub.CheckInFailed(code, message)
}
