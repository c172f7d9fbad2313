package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"qrcheckin/internal/domain"
)

const DefaultListLimit = 50

var (
	ErrDuplicate = errors.New("duplicate scan")
	ErrInvalid   = errors.New("invalid scan record")
)

// Store is the sqlite-backed scan journal.
type Store struct {
	db *sql.DB
}

// Summary counts journaled scans of one event.
type Summary struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
	Rejected  int `json:"rejected"`
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one scan. Scan IDs are unique.
func (s *Store) Record(ctx context.Context, record domain.ScanRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("%w: scan id is required", ErrInvalid)
	}
	if record.Outcome != domain.ScanOutcomeCheckedIn && record.Outcome != domain.ScanOutcomeRejected {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalid, record.Outcome)
	}
	if record.ScannedAt.IsZero() {
		record.ScannedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO scans(scan_id, event_id, payload, code, outcome, attendee_id, detail, scanned_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, record.ID, record.EventID, record.Payload, record.Code, string(record.Outcome), record.AttendeeID, record.Detail, ts(record.ScannedAt))
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, record.ID)
		}
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// ListByEvent returns the newest scans of one event first.
func (s *Store) ListByEvent(ctx context.Context, eventID string, limit int) ([]domain.ScanRecord, error) {
	return s.list(ctx, `
SELECT scan_id, event_id, payload, code, outcome, attendee_id, detail, scanned_at
FROM scans
WHERE event_id = ?
ORDER BY scanned_at DESC, rowid DESC
LIMIT ?
`, eventID, normalizeLimit(limit))
}

// Recent returns the newest scans across all events.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	return s.list(ctx, `
SELECT scan_id, event_id, payload, code, outcome, attendee_id, detail, scanned_at
FROM scans
ORDER BY scanned_at DESC, rowid DESC
LIMIT ?
`, normalizeLimit(limit))
}

func (s *Store) Summarize(ctx context.Context, eventID string) (Summary, error) {
	var summary Summary
	err := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
FROM scans
WHERE event_id = ?
`, string(domain.ScanOutcomeCheckedIn), string(domain.ScanOutcomeRejected), eventID).Scan(&summary.Total, &summary.CheckedIn, &summary.Rejected)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize scans: %w", err)
	}
	return summary, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]domain.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	records := make([]domain.ScanRecord, 0)
	for rows.Next() {
		var (
			record    domain.ScanRecord
			outcome   string
			scannedAt string
		)
		if err := rows.Scan(&record.ID, &record.EventID, &record.Payload, &record.Code,
			&outcome, &record.AttendeeID, &record.Detail, &scannedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record.Outcome = domain.ScanOutcome(outcome)
		parsed, err := parseTS(scannedAt)
		if err != nil {
			return nil, fmt.Errorf("parse scanned_at for %s: %w", record.ID, err)
		}
		record.ScannedAt = parsed
		records = append(records, record)
	}
	return records, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// ts keeps a fixed-width fraction so text ordering matches time ordering.
func ts(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
