package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"qrcheckin/internal/backend"
	"qrcheckin/internal/bootstrap"
	"qrcheckin/internal/config"
	"qrcheckin/internal/decoder"
	"qrcheckin/internal/domain"
	"qrcheckin/internal/usecase"
)

const (
	eventScanner = "qrcheckin:scanner"
	eventScan    = "qrcheckin:scan"
	eventCheckIn = "qrcheckin:checkin"
	eventError   = "qrcheckin:error"

	shutdownTimeout = 3 * time.Second
)

// App is the Wails application root and the owner of the scanner.
type App struct {
	ctx context.Context

	services   bootstrap.Services
	scanner    *usecase.Scanner
	dispatcher *usecase.CheckInDispatcher
	router     *usecase.ScanCheckIn
	backend    *backend.Client
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a, a)
	if err != nil {
		a.bootErr = err
		a.CheckInFailed(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.scanner = services.Scanner
	a.dispatcher = services.Dispatcher
	a.router = services.Router
	a.backend = services.Backend

	if services.Feed != nil {
		go func() {
			if err := services.Feed.ListenAndServe(); err != nil {
				services.Logger.Error().Err(err).Msg("feed server stopped")
				a.CheckInFailed(domain.ErrorCodeStartup, "live feed unavailable: "+err.Error())
			}
		}()
	}
	a.ScannerStateChanged(a.scanner.Status())
}

func (a *App) shutdown(_ context.Context) {
	if a.bootErr != nil || a.scanner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.services.Close(ctx); err != nil {
		a.services.Logger.Error().Err(err).Msg("shutdown")
	}
}

// ActivateScanner opens the camera and starts scanning.
func (a *App) ActivateScanner() (domain.ScannerStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.ScannerStatus{}, err
	}
	return a.scanner.Activate(a.ctx), nil
}

// DeactivateScanner stops scanning and releases the camera.
func (a *App) DeactivateScanner() (domain.ScannerStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.ScannerStatus{}, err
	}
	a.scanner.Deactivate()
	return a.scanner.Status(), nil
}

// GetScannerStatus returns the current scanner status.
func (a *App) GetScannerStatus() domain.ScannerStatus {
	if a.scanner == nil {
		status := domain.ScannerStatus{State: domain.ScannerStateIdle}
		if a.bootErr != nil {
			status.ErrorMessage = a.bootErr.Error()
		}
		return status
	}
	return a.scanner.Status()
}

// SelectEvent sets the event scanned codes check in to.
func (a *App) SelectEvent(eventID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.router.SelectEvent(eventID)
	return nil
}

// CheckInCode checks in a manually entered code at the selected event.
func (a *App) CheckInCode(code string) (domain.CheckInResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.CheckInResult{}, err
	}
	return a.dispatcher.CheckIn(a.ctx, a.router.EventID(), code)
}

func (a *App) ToggleCheckIn(attendeeID string) (domain.CheckInResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.CheckInResult{}, err
	}
	return a.dispatcher.ToggleCheckIn(a.ctx, attendeeID)
}

func (a *App) ListEvents() ([]domain.Event, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	events, err := a.backend.ListEvents(a.ctx)
	if err != nil {
		a.backendFailed(err)
		return nil, err
	}
	return events, nil
}

func (a *App) CreateEvent(event backend.NewEvent) (domain.Event, error) {
	if err := a.requireReady(); err != nil {
		return domain.Event{}, err
	}
	created, err := a.backend.CreateEvent(a.ctx, event)
	if err != nil {
		a.backendFailed(err)
		return domain.Event{}, err
	}
	return created, nil
}

// GetRoster returns the attendees of eventID filtered by term.
func (a *App) GetRoster(eventID string, term string) (domain.RosterView, error) {
	if err := a.requireReady(); err != nil {
		return domain.RosterView{}, err
	}
	attendees, err := a.backend.GetAttendeesByEvent(a.ctx, eventID)
	if err != nil {
		a.backendFailed(err)
		return domain.RosterView{}, err
	}
	return usecase.NewRoster(attendees).View(term), nil
}

func (a *App) AddAttendee(eventID string, input backend.AttendeeInput) (domain.Attendee, error) {
	if err := a.requireReady(); err != nil {
		return domain.Attendee{}, err
	}
	attendee, err := a.backend.AddAttendee(a.ctx, eventID, input)
	if err != nil {
		a.backendFailed(err)
		return domain.Attendee{}, err
	}
	return attendee, nil
}

func (a *App) UpdateAttendee(attendeeID string, input backend.AttendeeInput) (domain.Attendee, error) {
	if err := a.requireReady(); err != nil {
		return domain.Attendee{}, err
	}
	attendee, err := a.backend.UpdateAttendee(a.ctx, attendeeID, input)
	if err != nil {
		a.backendFailed(err)
		return domain.Attendee{}, err
	}
	return attendee, nil
}

func (a *App) DeleteAttendee(attendeeID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.backend.DeleteAttendee(a.ctx, attendeeID); err != nil {
		a.backendFailed(err)
		return err
	}
	return nil
}

// GetBadgeQRCode renders value as a PNG data URL for an attendee badge.
func (a *App) GetBadgeQRCode(value string) (string, error) {
	png, err := decoder.EncodeBadgePNG(value, decoder.DefaultBadgeSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"backend":           a.cfg.Backend.BaseURL,
		"cameraDevice":      a.cfg.Camera.Device,
		"cameraInputFormat": a.cfg.Camera.InputFormat,
		"facingMode":        a.cfg.Camera.FacingMode,
		"rulesFile":         a.cfg.Payload.RulesPath,
	}
	if a.router != nil {
		info["eventId"] = a.router.EventID()
	}
	if a.cfg.Journal.Enabled {
		info["journal"] = a.cfg.Journal.Path
	}
	if a.cfg.Feed.Enabled {
		info["feed"] = a.cfg.Feed.Addr
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.scanner == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) backendFailed(err error) {
	message := err.Error()
	var be *backend.Error
	if errors.As(err, &be) && be.UserMessage() != "" {
		message = be.UserMessage()
	}
	a.CheckInFailed(domain.ErrorCodeBackend, message)
}

// ScannerStateChanged emits scanner lifecycle updates to the frontend.
func (a *App) ScannerStateChanged(status domain.ScannerStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventScanner, status)
	if status.ErrorMessage != "" {
		a.CheckInFailed(domain.ErrorCodeCamera, status.ErrorMessage)
	}
}

// Scanned emits the raw decoded payload; the check-in itself is queued by the
// scan router.
func (a *App) Scanned(payload string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventScan, map[string]string{"payload": payload})
}

// CheckInSucceeded emits a check-in or toggle result.
func (a *App) CheckInSucceeded(result domain.CheckInResult) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCheckIn, result)
}

// CheckInFailed emits backend errors to the UI.
func (a *App) CheckInFailed(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCamera:
		return "Camera error"
	case domain.ErrorCodeCheckIn:
		return "Check-in failed"
	case domain.ErrorCodeBackend:
		return "Backend request failed"
	case domain.ErrorCodeJournal:
		return "Scan journal write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
