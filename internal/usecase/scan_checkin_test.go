package usecase

import (
	"context"
	"sync"
	"testing"

	"qrcheckin/internal/domain"
)

func TestScanCheckInRoutesScansToSelectedEvent(t *testing.T) {
	t.Parallel()

	backend := &recordingBackend{}
	events := &fakeCheckInEvents{}
	d := newTestDispatcher(backend, nil, nil, events)
	router := NewScanCheckIn(context.Background(), d, " ev1 ")

	router.Scanned("EV001-ALICE-001")
	router.SelectEvent("ev2")
	router.Scanned("EV002-BOB-002")
	router.Close()

	calls := backend.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 check-ins, got %v", calls)
	}
	if calls[0] != "ev1/EV001-ALICE-001" || calls[1] != "ev2/EV002-BOB-002" {
		t.Fatalf("unexpected check-in order or routing: %v", calls)
	}
	if router.EventID() != "ev2" {
		t.Fatalf("unexpected event id %q", router.EventID())
	}
}

func TestScanCheckInIgnoresScansAfterClose(t *testing.T) {
	t.Parallel()

	backend := &recordingBackend{}
	router := NewScanCheckIn(context.Background(), newTestDispatcher(backend, nil, nil, &fakeCheckInEvents{}), "ev1")
	router.Close()
	router.Close()

	router.Scanned("late")
	if calls := backend.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no check-ins after close, got %v", calls)
	}
}

func TestScanCheckInStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &recordingBackend{}
	router := NewScanCheckIn(ctx, newTestDispatcher(backend, nil, nil, &fakeCheckInEvents{}), "ev1")
	router.Scanned("EV001")
	router.Close()

	if calls := backend.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no check-ins after cancel, got %v", calls)
	}
}

type recordingBackend struct {
	mu    sync.Mutex
	calls []string
}

func (b *recordingBackend) CheckInByQRCode(_ context.Context, eventID string, code string) (domain.Attendee, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, eventID+"/"+code)
	return domain.Attendee{ID: code, Name: code, CheckedIn: true}, nil
}

func (b *recordingBackend) ToggleCheckIn(_ context.Context, attendeeID string) (domain.Attendee, error) {
	return domain.Attendee{ID: attendeeID}, nil
}

func (b *recordingBackend) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}
