package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"qrcheckin/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal", "scans.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecordAndList(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	records := []domain.ScanRecord{
		{ID: "s1", EventID: "ev1", Payload: "EV001-ALICE-001", Code: "EV001-ALICE-001", Outcome: domain.ScanOutcomeCheckedIn, AttendeeID: "a1", ScannedAt: base},
		{ID: "s2", EventID: "ev1", Payload: "BAD", Code: "BAD", Outcome: domain.ScanOutcomeRejected, Detail: "Attendee not found", ScannedAt: base.Add(2 * time.Second)},
		{ID: "s3", EventID: "ev2", Payload: "EV002-BOB-002", Code: "EV002-BOB-002", Outcome: domain.ScanOutcomeCheckedIn, AttendeeID: "b1", ScannedAt: base.Add(time.Second)},
	}
	for _, record := range records {
		if err := store.Record(ctx, record); err != nil {
			t.Fatalf("record %s: %v", record.ID, err)
		}
	}

	listed, err := store.ListByEvent(ctx, "ev1", 0)
	if err != nil {
		t.Fatalf("list by event: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "s2" || listed[1].ID != "s1" {
		t.Fatalf("expected newest first for ev1, got %+v", listed)
	}
	if listed[0].Detail != "Attendee not found" || listed[0].Outcome != domain.ScanOutcomeRejected {
		t.Fatalf("unexpected rejected record: %+v", listed[0])
	}
	if !listed[1].ScannedAt.Equal(base) {
		t.Fatalf("unexpected scanned_at round trip: %v", listed[1].ScannedAt)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "s2" || recent[1].ID != "s3" {
		t.Fatalf("unexpected recent scans: %+v", recent)
	}

	summary, err := store.Summarize(ctx, "ev1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != (Summary{Total: 2, CheckedIn: 1, Rejected: 1}) {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestStoreRejectsDuplicateAndInvalidRecords(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	record := domain.ScanRecord{ID: "s1", EventID: "ev1", Outcome: domain.ScanOutcomeCheckedIn}
	if err := store.Record(ctx, record); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, record); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := store.Record(ctx, domain.ScanRecord{EventID: "ev1", Outcome: domain.ScanOutcomeCheckedIn}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing id, got %v", err)
	}
	if err := store.Record(ctx, domain.ScanRecord{ID: "s2", Outcome: "maybe"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown outcome, got %v", err)
	}
}

func TestStoreEmptySummaryAndList(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	listed, err := store.ListByEvent(ctx, "none", 10)
	if err != nil || listed == nil || len(listed) != 0 {
		t.Fatalf("expected empty non-nil list, got %+v err=%v", listed, err)
	}
	summary, err := store.Summarize(ctx, "none")
	if err != nil || summary != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v err=%v", summary, err)
	}
}

func TestOpenReappliesMigrationsIdempotently(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scans.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Record(ctx, domain.ScanRecord{ID: "s1", EventID: "ev1", Outcome: domain.ScanOutcomeCheckedIn}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	var versions int
	if err := second.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&versions); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if versions != len(migrations) {
		t.Fatalf("expected %d migrations, got %d", len(migrations), versions)
	}
	listed, err := second.Recent(ctx, 0)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected persisted scan, got %+v err=%v", listed, err)
	}
}
