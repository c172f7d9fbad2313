package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qrcheckin/internal/domain"
	"qrcheckin/internal/ports"
)

var (
	ErrEmptyCode       = errors.New("empty check-in code")
	ErrNoEventSelected = errors.New("no event selected")
)

const (
	MessageEmptyCode       = "Please enter a QR code"
	MessageNoEventSelected = "Select an event before checking in"
	messageCheckInFailed   = "Check-in failed"
	messageToggleFailed    = "Toggle failed"
)

// userMessager is implemented by backend errors that carry a message meant for
// the operator.
type userMessager interface {
	UserMessage() string
}

// CheckInDispatcher turns scanned payloads into backend check-ins.
type CheckInDispatcher struct {
	backend    ports.CheckInBackend
	normalizer ports.PayloadNormalizer
	journal    ports.ScanJournal
	events     ports.CheckInEvents
	logger     zerolog.Logger

	newID func() string
	now   func() time.Time
}

func NewCheckInDispatcher(
	backend ports.CheckInBackend,
	normalizer ports.PayloadNormalizer,
	journal ports.ScanJournal,
	events ports.CheckInEvents,
	logger *zerolog.Logger,
) *CheckInDispatcher {
	if normalizer == nil {
		normalizer = trimNormalizer{}
	}
	if journal == nil {
		journal = nopJournal{}
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "checkin").Logger()
	}
	return &CheckInDispatcher{
		backend:    backend,
		normalizer: normalizer,
		journal:    journal,
		events:     events,
		logger:     l,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// CheckIn checks in the attendee identified by payload at eventID.
func (d *CheckInDispatcher) CheckIn(ctx context.Context, eventID string, payload string) (domain.CheckInResult, error) {
	if strings.TrimSpace(eventID) == "" {
		d.events.CheckInFailed(domain.ErrorCodeCheckIn, MessageNoEventSelected)
		return domain.CheckInResult{}, ErrNoEventSelected
	}

	record := domain.ScanRecord{
		ID:        d.newID(),
		EventID:   eventID,
		Payload:   payload,
		Outcome:   domain.ScanOutcomeRejected,
		ScannedAt: d.now().UTC(),
	}

	code, err := d.normalizer.Normalize(payload)
	if err != nil {
		record.Detail = err.Error()
		d.record(ctx, record)
		d.events.CheckInFailed(domain.ErrorCodeCheckIn, "Invalid QR code: "+err.Error())
		return domain.CheckInResult{}, err
	}
	if code == "" {
		record.Detail = MessageEmptyCode
		d.record(ctx, record)
		d.events.CheckInFailed(domain.ErrorCodeCheckIn, MessageEmptyCode)
		return domain.CheckInResult{}, ErrEmptyCode
	}
	record.Code = code

	attendee, err := d.backend.CheckInByQRCode(ctx, eventID, code)
	if err != nil {
		message := operatorMessage(err, messageCheckInFailed)
		record.Detail = message
		d.record(ctx, record)
		d.logger.Warn().Err(err).Str("event_id", eventID).Str("code", code).Msg("check-in rejected")
		d.events.CheckInFailed(domain.ErrorCodeCheckIn, message)
		return domain.CheckInResult{}, err
	}

	record.Outcome = domain.ScanOutcomeCheckedIn
	record.AttendeeID = attendee.ID
	d.record(ctx, record)

	result := domain.CheckInResult{
		Attendee: attendee,
		Code:     code,
		Message:  attendee.Name + " has been checked in!",
	}
	d.logger.Info().Str("event_id", eventID).Str("attendee_id", attendee.ID).Msg("attendee checked in")
	d.events.CheckInSucceeded(result)
	return result, nil
}

// ToggleCheckIn flips the checked-in flag of one attendee.
func (d *CheckInDispatcher) ToggleCheckIn(ctx context.Context, attendeeID string) (domain.CheckInResult, error) {
	attendee, err := d.backend.ToggleCheckIn(ctx, attendeeID)
	if err != nil {
		d.events.CheckInFailed(domain.ErrorCodeCheckIn, operatorMessage(err, messageToggleFailed))
		return domain.CheckInResult{}, err
	}

	action := "checked out"
	if attendee.CheckedIn {
		action = "checked in"
	}
	result := domain.CheckInResult{
		Attendee: attendee,
		Message:  attendee.Name + " has been " + action,
	}
	d.events.CheckInSucceeded(result)
	return result, nil
}

func (d *CheckInDispatcher) record(ctx context.Context, record domain.ScanRecord) {
	if err := d.journal.Record(ctx, record); err != nil {
		d.logger.Error().Err(err).Str("scan_id", record.ID).Msg("journal write failed")
		d.events.CheckInFailed(domain.ErrorCodeJournal, "scan journal write failed")
	}
}

func operatorMessage(err error, fallback string) string {
	var um userMessager
	if errors.As(err, &um) {
		if message := strings.TrimSpace(um.UserMessage()); message != "" {
			return message
		}
	}
	return fallback
}

type trimNormalizer struct{}

func (trimNormalizer) Normalize(payload string) (string, error) {
	return strings.TrimSpace(payload), nil
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, domain.ScanRecord) error { return nil }
