package main

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"qrcheckin/internal/domain"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup: "Startup failed",
		domain.ErrorCodeCamera:  "Camera error",
		domain.ErrorCodeCheckIn: "Check-in failed",
		domain.ErrorCodeBackend: "Backend request failed",
		domain.ErrorCodeJournal: "Scan journal write failed",
	}
	for code, want := range cases {
		code, want := code, want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.CheckInCode("EV001"); !errors.Is(err, bootErr) {
		t.Fatalf("expected bindings to be guarded, got %v", err)
	}
}

func TestGetScannerStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetScannerStatus()
	if status.State != domain.ScannerStateIdle || status.IsCameraActive || status.ErrorMessage != "" {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetScannerStatus()
	if status.State != domain.ScannerStateIdle || status.ErrorMessage != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
}

func TestGetBadgeQRCode(t *testing.T) {
	t.Parallel()

	app := &App{}
	url, err := app.GetBadgeQRCode("EV001-ALICE-001")
	if err != nil {
		t.Fatalf("badge failed: %v", err)
	}
	encoded, ok := strings.CutPrefix(url, "data:image/png;base64,")
	if !ok {
		t.Fatalf("expected png data url, got %q", url[:min(len(url), 40)])
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !strings.HasPrefix(string(raw), "\x89PNG") {
		t.Fatalf("expected png bytes, err=%v", err)
	}

	if _, err := app.GetBadgeQRCode(""); err == nil {
		t.Fatalf("expected empty value error")
	}
}

func TestEventSinksWithoutContext(t *testing.T) {
	t.Parallel()

	app := &App{}
	app.ScannerStateChanged(domain.ScannerStatus{State: domain.ScannerStateIdle, ErrorMessage: "No camera found on this device."})
	app.Scanned("EV001")
	app.CheckInSucceeded(domain.CheckInResult{Message: "Alice has been checked in!"})
	app.CheckInFailed(domain.ErrorCodeCheckIn, "Check-in failed")
}
