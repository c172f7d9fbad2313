package domain

import "time"

// ScannerState models the camera scanner lifecycle.
type ScannerState string

const (
	ScannerStateIdle      ScannerState = "idle"
	ScannerStateAcquiring ScannerState = "acquiring"
	ScannerStateScanning  ScannerState = "scanning"
)

// ScannerStatus is the read-only view of a scanner that owners bind to.
type ScannerStatus struct {
	State          ScannerState `json:"state"`
	IsInitializing bool         `json:"isInitializing"`
	IsScanning     bool         `json:"isScanning"`
	IsCameraActive bool         `json:"isCameraActive"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
}

// ErrorCode identifies errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup ErrorCode = "startup"
	ErrorCodeCamera  ErrorCode = "camera"
	ErrorCodeCheckIn ErrorCode = "checkin"
	ErrorCodeBackend ErrorCode = "backend"
	ErrorCodeJournal ErrorCode = "journal"
)

// EventStatus is the lifecycle status of an event as reported by the backend.
type EventStatus string

const (
	EventStatusActive    EventStatus = "Active"
	EventStatusCompleted EventStatus = "Completed"
	EventStatusCancelled EventStatus = "Cancelled"
)

// Event is an event attendees check in to.
type Event struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Date          string      `json:"date"`
	Location      string      `json:"location"`
	Description   string      `json:"description,omitempty"`
	Status        EventStatus `json:"status,omitempty"`
	AttendeeCount int         `json:"attendeeCount"`
}

// Attendee is a registered attendee of one event.
type Attendee struct {
	ID          string     `json:"id"`
	EventID     string     `json:"eventId"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	QRCode      string     `json:"qrCode"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckInTime *time.Time `json:"checkInTime,omitempty"`
}

// CheckInResult is returned after an attendee has been checked in or out.
type CheckInResult struct {
	Attendee Attendee `json:"attendee"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
}

// ScanOutcome classifies a journaled scan.
type ScanOutcome string

const (
	ScanOutcomeCheckedIn ScanOutcome = "checked_in"
	ScanOutcomeRejected  ScanOutcome = "rejected"
)

// ScanRecord is one journaled check-in attempt.
type ScanRecord struct {
	ID         string      `json:"id"`
	EventID    string      `json:"eventId"`
	Payload    string      `json:"payload"`
	Code       string      `json:"code"`
	Outcome    ScanOutcome `json:"outcome"`
	AttendeeID string      `json:"attendeeId,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	ScannedAt  time.Time   `json:"scannedAt"`
}

// RosterView is the attendee list of one event as displayed to the operator.
type RosterView struct {
	Attendees       []Attendee `json:"attendees"`
	Total           int        `json:"total"`
	CheckedIn       int        `json:"checkedIn"`
	TotalLabel      string     `json:"totalLabel"`
	CheckedInLabel  string     `json:"checkedInLabel"`
	NoSearchResults bool       `json:"noSearchResults"`
}
