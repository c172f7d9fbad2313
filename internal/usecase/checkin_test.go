package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"qrcheckin/internal/domain"
	"qrcheckin/internal/ports"
)

func TestCheckInDispatcherSuccess(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{attendee: domain.Attendee{ID: "a1", Name: "Alice", CheckedIn: true}}
	journal := &fakeJournal{}
	events := &fakeCheckInEvents{}
	d := newTestDispatcher(backend, nil, journal, events)

	result, err := d.CheckIn(context.Background(), "ev1", "  EV001-ALICE-001\n")
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if result.Message != "Alice has been checked in!" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	if backend.lastEventID != "ev1" || backend.lastCode != "EV001-ALICE-001" {
		t.Fatalf("unexpected backend call: %s %q", backend.lastEventID, backend.lastCode)
	}

	records := journal.snapshot()
	if len(records) != 1 || records[0].Outcome != domain.ScanOutcomeCheckedIn || records[0].AttendeeID != "a1" {
		t.Fatalf("unexpected journal: %+v", records)
	}
	if records[0].ID != "scan-1" || records[0].Payload != "  EV001-ALICE-001\n" {
		t.Fatalf("unexpected record identity: %+v", records[0])
	}
	if len(events.successes) != 1 || len(events.failures) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCheckInDispatcherBackendRejection(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{err: messageError{message: "Attendee already checked in"}}
	journal := &fakeJournal{}
	events := &fakeCheckInEvents{}
	d := newTestDispatcher(backend, nil, journal, events)

	_, err := d.CheckIn(context.Background(), "ev1", "CODE")
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if len(events.failures) != 1 || events.failures[0].message != "Attendee already checked in" {
		t.Fatalf("expected backend message, got %+v", events.failures)
	}
	records := journal.snapshot()
	if len(records) != 1 || records[0].Outcome != domain.ScanOutcomeRejected || records[0].Detail != "Attendee already checked in" {
		t.Fatalf("unexpected journal: %+v", records)
	}
}

func TestCheckInDispatcherFallbackMessage(t *testing.T) {
	t.Parallel()

	events := &fakeCheckInEvents{}
	d := newTestDispatcher(&fakeBackend{err: errors.New("dial tcp: refused")}, nil, nil, events)

	if _, err := d.CheckIn(context.Background(), "ev1", "CODE"); err == nil {
		t.Fatalf("expected error")
	}
	if events.failures[0].message != "Check-in failed" {
		t.Fatalf("unexpected message: %q", events.failures[0].message)
	}
}

func TestCheckInDispatcherRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	journal := &fakeJournal{}
	events := &fakeCheckInEvents{}
	d := newTestDispatcher(backend, nil, journal, events)

	if _, err := d.CheckIn(context.Background(), "", "CODE"); !errors.Is(err, ErrNoEventSelected) {
		t.Fatalf("expected ErrNoEventSelected, got %v", err)
	}
	if _, err := d.CheckIn(context.Background(), "ev1", "   "); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("expected ErrEmptyCode, got %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("expected no backend call")
	}
	if events.failures[1].message != MessageEmptyCode {
		t.Fatalf("unexpected message: %q", events.failures[1].message)
	}
	records := journal.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected the empty code to be journaled, got %+v", records)
	}
	if records[0].EventID != "ev1" || records[0].Outcome != domain.ScanOutcomeRejected || records[0].Detail != MessageEmptyCode {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestCheckInDispatcherNormalizerError(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	journal := &fakeJournal{}
	events := &fakeCheckInEvents{}
	d := newTestDispatcher(backend, &fakeNormalizer{err: errors.New("payload too long")}, journal, events)

	if _, err := d.CheckIn(context.Background(), "ev1", "CODE"); err == nil {
		t.Fatalf("expected normalizer error")
	}
	if backend.calls != 0 {
		t.Fatalf("expected no backend call")
	}
	if events.failures[0].message != "Invalid QR code: payload too long" {
		t.Fatalf("unexpected message: %q", events.failures[0].message)
	}
	if records := journal.snapshot(); len(records) != 1 || records[0].Outcome != domain.ScanOutcomeRejected {
		t.Fatalf("expected rejected record, got %+v", records)
	}
}

func TestCheckInDispatcherJournalFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	events := &fakeCheckInEvents{}
	d := newTestDispatcher(&fakeBackend{attendee: domain.Attendee{ID: "a1", Name: "Alice"}}, nil, &fakeJournal{err: errors.New("disk full")}, events)

	if _, err := d.CheckIn(context.Background(), "ev1", "CODE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events.failures) != 1 || events.failures[0].code != domain.ErrorCodeJournal {
		t.Fatalf("expected journal error event, got %+v", events.failures)
	}
	if len(events.successes) != 1 {
		t.Fatalf("expected check-in success event")
	}
}

func TestCheckInDispatcherToggle(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{attendee: domain.Attendee{ID: "a1", Name: "Bob", CheckedIn: false}}
	d := newTestDispatcher(backend, nil, nil, &fakeCheckInEvents{})

	result, err := d.ToggleCheckIn(context.Background(), "a1")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if result.Message != "Bob has been checked out" {
		t.Fatalf("unexpected message: %q", result.Message)
	}

	backend.attendee.CheckedIn = true
	result, _ = d.ToggleCheckIn(context.Background(), "a1")
	if result.Message != "Bob has been checked in" {
		t.Fatalf("unexpected message: %q", result.Message)
	}

	events := &fakeCheckInEvents{}
	d = newTestDispatcher(&fakeBackend{err: errors.New("x")}, nil, nil, events)
	if _, err := d.ToggleCheckIn(context.Background(), "a1"); err == nil {
		t.Fatalf("expected toggle error")
	}
	if events.failures[0].message != "Toggle failed" {
		t.Fatalf("unexpected message: %q", events.failures[0].message)
	}
}

func newTestDispatcher(backend ports.CheckInBackend, normalizer ports.PayloadNormalizer, journal ports.ScanJournal, events ports.CheckInEvents) *CheckInDispatcher {
	d := NewCheckInDispatcher(backend, normalizer, journal, events, nil)
	seq := 0
	d.newID = func() string {
		seq++
		return fmt.Sprintf("scan-%d", seq)
	}
	d.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return d
}

type messageError struct {
	message string
}

func (e messageError) Error() string       { return "backend: " + e.message }
func (e messageError) UserMessage() string { return e.message }

type fakeBackend struct {
	attendee    domain.Attendee
	err         error
	calls       int
	lastEventID string
	lastCode    string
}

func (f *fakeBackend) CheckInByQRCode(_ context.Context, eventID string, code string) (domain.Attendee, error) {
	f.calls++
	f.lastEventID = eventID
	f.lastCode = code
	if f.err != nil {
		return domain.Attendee{}, f.err
	}
	return f.attendee, nil
}

func (f *fakeBackend) ToggleCheckIn(_ context.Context, _ string) (domain.Attendee, error) {
	f.calls++
	if f.err != nil {
		return domain.Attendee{}, f.err
	}
	return f.attendee, nil
}

type fakeNormalizer struct {
	err error
}

func (f *fakeNormalizer) Normalize(payload string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return payload, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	records []domain.ScanRecord
	err     error
}

func (f *fakeJournal) Record(_ context.Context, record domain.ScanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return f.err
}

func (f *fakeJournal) snapshot() []domain.ScanRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ScanRecord, len(f.records))
	copy(out, f.records)
	return out
}

type fakeCheckInEvents struct {
	successes []domain.CheckInResult
	failures  []errEvent
}

type errEvent struct {
	code    domain.ErrorCode
	message string
}

func (f *fakeCheckInEvents) CheckInSucceeded(result domain.CheckInResult) {
	f.successes = append(f.successes, result)
}

func (f *fakeCheckInEvents) CheckInFailed(code domain.ErrorCode, message string) {
	f.failures = append(f.failures, errEvent{code: code, message: message})
}
