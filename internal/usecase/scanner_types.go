package usecase

import (
	"context"

	"qrcheckin/internal/domain"
	"qrcheckin/internal/ports"
)

type scanPhase int

const (
	phaseIdle scanPhase = iota
	phaseAcquiring
	phaseScanning
)

// scanSession is one camera acquisition. stream is nil while acquiring and
// done is nil until the sampling loop has been started.
type scanSession struct {
	cancel context.CancelFunc
	stream ports.VideoStream
	done   chan struct{}
}

// scannerState pairs the phase with its session; session is nil iff idle.
type scannerState struct {
	phase   scanPhase
	session *scanSession
}

func idleState() scannerState {
	return scannerState{phase: phaseIdle}
}

func acquiringState(session *scanSession) scannerState {
	return scannerState{phase: phaseAcquiring, session: session}
}

func scanningState(session *scanSession) scannerState {
	return scannerState{phase: phaseScanning, session: session}
}

func (s scannerState) status(errorMessage string) domain.ScannerStatus {
	status := domain.ScannerStatus{State: domain.ScannerStateIdle, ErrorMessage: errorMessage}
	switch s.phase {
	case phaseAcquiring:
		status.State = domain.ScannerStateAcquiring
		status.IsInitializing = true
	case phaseScanning:
		status.State = domain.ScannerStateScanning
		status.IsScanning = true
	}
	status.IsCameraActive = s.session != nil && s.session.stream != nil && errorMessage == ""
	return status
}
