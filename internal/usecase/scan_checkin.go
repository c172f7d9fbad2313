package usecase

import (
	"context"
	"strings"
	"sync"

	"qrcheckin/internal/domain"
)

// ScanCheckIn checks in every scanned payload against the selected event.
// It is a ports.ScannerEvents; check-ins run off the scanner goroutine, one
// at a time and in scan order.
type ScanCheckIn struct {
	ctx        context.Context
	dispatcher *CheckInDispatcher

	mu      sync.Mutex
	eventID string
	closed  bool

	queue chan scanJob
	wg    sync.WaitGroup
}

type scanJob struct {
	eventID string
	payload string
}

func NewScanCheckIn(ctx context.Context, dispatcher *CheckInDispatcher, eventID string) *ScanCheckIn {
	s := &ScanCheckIn{
		ctx:        ctx,
		dispatcher: dispatcher,
		eventID:    strings.TrimSpace(eventID),
		queue:      make(chan scanJob, 8),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// SelectEvent switches the event later scans check in to.
func (s *ScanCheckIn) SelectEvent(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventID = strings.TrimSpace(eventID)
}

func (s *ScanCheckIn) EventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}

func (s *ScanCheckIn) ScannerStateChanged(domain.ScannerStatus) {}

// Scanned queues a check-in. Scans arriving while the queue is full are
// dropped; the debounce window keeps that from happening in practice.
func (s *ScanCheckIn) Scanned(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return
	}
	select {
	case s.queue <- scanJob{eventID: s.eventID, payload: payload}:
	default:
		s.dispatcher.logger.Warn().Str("payload", payload).Msg("check-in queue full; scan dropped")
	}
}

// Close stops accepting scans and waits for queued check-ins to finish.
func (s *ScanCheckIn) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *ScanCheckIn) run() {
	defer s.wg.Done()
	for job := range s.queue {
		if s.ctx.Err() != nil {
			continue
		}
		_, _ = s.dispatcher.CheckIn(s.ctx, job.eventID, job.payload)
	}
}
