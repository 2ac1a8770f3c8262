package pacer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer converts stream-local timestamps into wall-clock presentation
// times. The zero value is not usable; construct with New.
type Pacer struct {
	targetLatencyMicros atomic.Int64
	now                 func() int64 // wall clock, overridable in tests

	sig             *signal
	mu              sync.Mutex
	haveReference   bool
	referenceMicros int64
}

// New creates a Pacer with the given initial target latency in
// microseconds (§4.8: max(video_delay, audio_delay) + jitter_override).
func New(targetLatencyMicros int64) *Pacer {
	p := &Pacer{
		sig: newSignal(),
		now: func() int64 { return time.Now().UnixMicro() },
	}
	p.targetLatencyMicros.Store(targetLatencyMicros)
	return p
}

// TargetLatency returns the current target latency in microseconds.
func (p *Pacer) TargetLatency() int64 {
	return p.targetLatencyMicros.Load()
}

// SetTargetLatency updates the target latency and wakes any blocked Wait
// call so it can recompute against the new value immediately.
func (p *Pacer) SetTargetLatency(micros int64) {
	p.targetLatencyMicros.Store(micros)
	p.sig.notify()
}

// Reference returns the current reference offset (wall_now − frame_ts at
// the earliest-observed arrival) in microseconds, and whether any frame
// has been observed yet.
func (p *Pacer) Reference() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.referenceMicros, p.haveReference
}

// Received records the arrival of a frame with stream-local timestamp ts
// (microseconds). If this arrival's offset from wall clock is earlier
// than the current reference — or no reference exists yet — the
// reference updates and waiters are woken so outstanding Wait calls can
// catch up rather than pausing.
func (p *Pacer) Received(ts int64) {
	offset := p.now() - ts
	p.mu.Lock()
	if p.haveReference && offset >= p.referenceMicros {
		p.mu.Unlock()
		return
	}
	p.haveReference = true
	p.referenceMicros = offset
	p.mu.Unlock()
	p.sig.notify()
}

// Wait blocks until ts is due for presentation: reference −
// (wall_now − ts) + target_latency has elapsed. It returns immediately
// if that duration is already non-positive, returns nil once the
// duration elapses, or returns ctx.Err() if ctx is done first. A
// reference update or target-latency change during the wait re-gates
// the sleep so playback catches up or backs off without losing the
// wake-up.
func (p *Pacer) Wait(ctx context.Context, ts int64) error {
	for {
		p.mu.Lock()
		ch := p.sig.wait()
		haveReference := p.haveReference
		reference := p.referenceMicros
		p.mu.Unlock()

		if !haveReference {
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		target := p.targetLatencyMicros.Load()
		sleep := reference - (p.now() - ts) + target
		if sleep <= 0 {
			return nil
		}

		timer := time.NewTimer(time.Duration(sleep) * time.Microsecond)
		select {
		case <-timer.C:
		case <-ch:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
