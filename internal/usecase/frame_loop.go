package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrcheckin/internal/ports"
)

type frameOutcome int

const (
	frameNotReady frameOutcome = iota
	frameMiss
	frameDecoded
	frameStreamEnded
)

// frameSampler copies frames into a reusable raster and decodes them.
type frameSampler struct {
	stream  ports.VideoStream
	decoder ports.Decoder
	raster  []byte
}

func (f *frameSampler) sample() (string, frameOutcome, error) {
	if !f.stream.Ready() {
		return "", frameNotReady, nil
	}
	width, height := f.stream.Size()
	if width <= 0 || height <= 0 {
		return "", frameNotReady, nil
	}

	size := width * height * 4
	if cap(f.raster) < size {
		f.raster = make([]byte, size)
	}
	f.raster = f.raster[:size]

	if err := f.stream.Frame(f.raster); err != nil {
		switch {
		case errors.Is(err, ports.ErrStreamClosed):
			return "", frameStreamEnded, err
		case errors.Is(err, ports.ErrFrameNotReady):
			return "", frameNotReady, nil
		default:
			return "", frameNotReady, err
		}
	}

	payload, ok, err := f.decode(width, height)
	if err != nil {
		return "", frameMiss, err
	}
	if !ok || payload == "" {
		return "", frameMiss, nil
	}
	return payload, frameDecoded, nil
}

// decode turns a decoder panic into a per-frame miss.
func (f *frameSampler) decode(width int, height int) (payload string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, ok, err = "", false, fmt.Errorf("decoder panic: %v", r)
		}
	}()
	payload, ok = f.decoder.Decode(f.raster, width, height, ports.DecodeOptions{Inversion: ports.InversionDontInvert})
	return payload, ok, nil
}

// sampleFrames runs one tick per frame until the session is cancelled or the
// stream ends. Ticks never overlap: the next one is received only after the
// current one returns.
func (s *Scanner) sampleFrames(ctx context.Context, session *scanSession, ticks <-chan time.Time) {
	defer close(session.done)

	sampler := &frameSampler{stream: session.stream, decoder: s.decoder}
	ready := false

	for {
		var now time.Time
		select {
		case <-ctx.Done():
			s.endSession(session, "")
			return
		case tick, ok := <-ticks:
			if !ok {
				s.endSession(session, "")
				return
			}
			now = tick
		}
		if ctx.Err() != nil {
			s.endSession(session, "")
			return
		}

		payload, outcome, err := sampler.sample()
		if outcome == frameStreamEnded {
			s.logger.Warn().Err(err).Msg("camera stream ended")
			s.endSession(session, messageStreamEnded+err.Error())
			return
		}
		if err != nil {
			s.logger.Debug().Err(err).Msg("frame sample failed")
		}
		if outcome == frameNotReady {
			continue
		}

		if !ready {
			ready = true
			s.promote(session)
		}
		s.cfg.Observer.FrameSampled()
		if outcome != frameDecoded {
			continue
		}

		s.cfg.Observer.FrameDecoded()
		if !s.admit(session, now) {
			s.cfg.Observer.ScanSuppressed()
			continue
		}
		s.cfg.Observer.ScanEmitted()
		s.logger.Info().Str("payload", payload).Msg("qr code scanned")
		s.events.Scanned(payload)
	}
}

// IntervalTicker fires at a fixed cadence. Ticks are dropped, never queued,
// while the sampling loop is busy.
type IntervalTicker struct {
	interval time.Duration
}

func NewIntervalTicker(interval time.Duration) *IntervalTicker {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &IntervalTicker{interval: interval}
}

func (t *IntervalTicker) Ticks(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time)
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case out <- now:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
