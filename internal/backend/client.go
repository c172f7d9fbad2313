package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrcheckin/internal/domain"
)

const defaultTimeout = 10 * time.Second

var (
	ErrMissingEventFields    = errors.New("event name, date and location are required")
	ErrMissingAttendeeFields = errors.New("attendee name and email are required")
	ErrInvalidEmail          = errors.New("attendee email is invalid")
	ErrMissingID             = errors.New("id is required")
	ErrEmptyQRCode           = errors.New("qr code is required")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Config controls the backend HTTP client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the check-in backend over JSON HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	timeout time.Duration
	newKey  func() string
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
		timeout: cfg.Timeout,
		newKey:  uuid.NewString,
	}
}

// Error is a non-2xx backend response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if message := strings.TrimSpace(e.Message); message != "" {
		return fmt.Sprintf("backend http %d: %s", e.Status, message)
	}
	return fmt.Sprintf("backend http %d", e.Status)
}

// UserMessage is the backend's own explanation, shown to the operator as is.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Message)
}

// NewEvent is the input of CreateEvent.
type NewEvent struct {
	Name        string `json:"name"`
	Date        string `json:"eventDate"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

func (e NewEvent) Validate() error {
	if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Date) == "" || strings.TrimSpace(e.Location) == "" {
		return ErrMissingEventFields
	}
	return nil
}

// AttendeeInput is the input of AddAttendee and UpdateAttendee.
type AttendeeInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a AttendeeInput) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Email) == "" {
		return ErrMissingAttendeeFields
	}
	if !emailPattern.MatchString(a.Email) {
		return ErrInvalidEmail
	}
	return nil
}

func (c *Client) ListEvents(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	if err := c.do(ctx, http.MethodGet, "/events", nil, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, event NewEvent) (domain.Event, error) {
	if err := event.Validate(); err != nil {
		return domain.Event{}, err
	}
	var created domain.Event
	err := c.do(ctx, http.MethodPost, "/events", event, &created)
	return created, err
}

func (c *Client) GetAttendeesByEvent(ctx context.Context, eventID string) ([]domain.Attendee, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event %w", ErrMissingID)
	}
	var attendees []domain.Attendee
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID)+"/attendees", nil, &attendees); err != nil {
		return nil, err
	}
	if attendees == nil {
		attendees = []domain.Attendee{}
	}
	return attendees, nil
}

func (c *Client) AddAttendee(ctx context.Context, eventID string, input AttendeeInput) (domain.Attendee, error) {
	if strings.TrimSpace(eventID) == "" {
		return domain.Attendee{}, fmt.Errorf("event %w", ErrMissingID)
	}
	if err := input.Validate(); err != nil {
		return domain.Attendee{}, err
	}
	var attendee domain.Attendee
	err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/attendees", input, &attendee)
	return attendee, err
}

func (c *Client) UpdateAttendee(ctx context.Context, attendeeID string, input AttendeeInput) (domain.Attendee, error) {
	if strings.TrimSpace(attendeeID) == "" {
		return domain.Attendee{}, fmt.Errorf("attendee %w", ErrMissingID)
	}
	if err := input.Validate(); err != nil {
		return domain.Attendee{}, err
	}
	var attendee domain.Attendee
	err := c.do(ctx, http.MethodPatch, "/attendees/"+url.PathEscape(attendeeID), input, &attendee)
	return attendee, err
}

func (c *Client) DeleteAttendee(ctx context.Context, attendeeID string) error {
	if strings.TrimSpace(attendeeID) == "" {
		return fmt.Errorf("attendee %w", ErrMissingID)
	}
	return c.do(ctx, http.MethodDelete, "/attendees/"+url.PathEscape(attendeeID), nil, nil)
}

func (c *Client) ToggleCheckIn(ctx context.Context, attendeeID string) (domain.Attendee, error) {
	if strings.TrimSpace(attendeeID) == "" {
		return domain.Attendee{}, fmt.Errorf("attendee %w", ErrMissingID)
	}
	var attendee domain.Attendee
	err := c.do(ctx, http.MethodPost, "/attendees/"+url.PathEscape(attendeeID)+"/toggle-check-in", nil, &attendee)
	return attendee, err
}

func (c *Client) CheckInByQRCode(ctx context.Context, eventID string, qrCode string) (domain.Attendee, error) {
	if strings.TrimSpace(eventID) == "" {
		return domain.Attendee{}, fmt.Errorf("event %w", ErrMissingID)
	}
	if strings.TrimSpace(qrCode) == "" {
		return domain.Attendee{}, ErrEmptyQRCode
	}
	body := struct {
		QRCode string `json:"qrCode"`
	}{QRCode: qrCode}

	var attendee domain.Attendee
	err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/check-in", body, &attendee)
	return attendee, err
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	if c.baseURL == "" {
		return errors.New("backend base URL is not configured")
	}

	reqCtx := ctx
	if c.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.timeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", c.newKey())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &er); err == nil && strings.TrimSpace(er.Message) != "" {
			return &Error{Status: resp.StatusCode, Message: er.Message}
		}
		return &Error{Status: resp.StatusCode}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
