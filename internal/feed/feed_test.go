package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"qrcheckin/internal/domain"
	"qrcheckin/internal/metrics"
)

type staticStatus struct {
	status domain.ScannerStatus
}

func (s staticStatus) Status() domain.ScannerStatus { return s.status }

func TestRouterHealthAndStatus(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	status := staticStatus{status: domain.ScannerStatus{State: domain.ScannerStateScanning, IsScanning: true, IsCameraActive: true}}
	router := NewRouter(hub, status, metrics.NewCollector(nil), Config{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	var payload struct {
		Scanner domain.ScannerStatus `json:"scanner"`
		Clients int                  `json:"clients"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload.Scanner != status.status || payload.Clients != 0 {
		t.Fatalf("unexpected status payload: %+v", payload)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "qrcheckin_http_requests_total") {
		t.Fatalf("expected http metrics after requests")
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHub(nil, nil), staticStatus{}, nil, Config{AllowedOrigins: []string{"https://desk.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "https://desk.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://desk.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestHubBroadcastsToWebsocketClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	server := httptest.NewServer(NewRouter(hub, staticStatus{}, nil, Config{}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.CheckInSucceeded(domain.CheckInResult{Attendee: domain.Attendee{ID: "a1", Name: "Alice"}, Message: "Alice has been checked in!"})
	hub.CheckInFailed(domain.ErrorCodeCheckIn, "Attendee not found")

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first message: %v", err)
	}
	if first.Type != MessageCheckIn {
		t.Fatalf("unexpected first message: %+v", first)
	}
	data, _ := first.Data.(map[string]any)
	if data["message"] != "Alice has been checked in!" {
		t.Fatalf("unexpected check-in data: %+v", first.Data)
	}

	var second Message
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second message: %v", err)
	}
	errData, _ := second.Data.(map[string]any)
	if second.Type != MessageError || errData["code"] != "checkin" || errData["message"] != "Attendee not found" {
		t.Fatalf("unexpected error message: %+v", second)
	}

	_ = conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHubDropsSlowClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	slow := &client{remote: "slow", send: make(chan []byte, 1)}
	fast := &client{remote: "fast", send: make(chan []byte, 4)}
	hub.clients[slow] = struct{}{}
	hub.clients[fast] = struct{}{}

	hub.Scanned("EV001")
	hub.Scanned("EV002")

	if hub.ClientCount() != 1 {
		t.Fatalf("expected slow client to be dropped, have %d clients", hub.ClientCount())
	}
	if _, ok := hub.clients[fast]; !ok {
		t.Fatalf("fast client must stay connected")
	}
	if len(fast.send) != 2 {
		t.Fatalf("fast client should have both messages, got %d", len(fast.send))
	}

	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Fatalf("slow client channel must be closed")
	}
}

func TestHubCloseRejectsNewClients(t *testing.T) {
	t.Parallel()

	hub := NewHub([]string{"*"}, nil)
	server := httptest.NewServer(NewRouter(hub, staticStatus{}, nil, Config{}))
	defer server.Close()

	hub.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected closed connection after hub close")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("closed hub must not register clients")
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	if originChecker(nil) != nil {
		t.Fatalf("no origins must fall back to same-origin checks")
	}

	check := originChecker([]string{"https://desk.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Fatalf("unexpected origin accepted")
	}
	req.Header.Set("Origin", "https://desk.example.com")
	if !check(req) {
		t.Fatalf("configured origin rejected")
	}
}

func TestServerShutdown(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	srv := NewServer("127.0.0.1:0", NewRouter(hub, staticStatus{}, nil, Config{}), hub, nil)
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	// Give the listener a moment before shutting down.
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
