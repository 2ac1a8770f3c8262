package mux

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// queueCap is the default per-buffer bounded append queue size of
// §4.11: on overflow, the oldest pending fragment is dropped.
const queueCap = 10

const (
	trimInterval       = time.Second
	trimMinRetention   = 10 * time.Second
	skipInterval       = 100 * time.Millisecond
	skipThresholdExtra = 100 * time.Millisecond
)

// Muxer drives one source buffer against a Sink: it appends the init
// segment once, serially appends queued fragments while honoring
// backpressure, and runs the periodic trim and skip-forward passes of
// §4.11.
//
// Grounded on distribution/streamstats.go's RecordSCTE35
// append-then-truncate-from-front pattern for the bounded queue, and on
// pacer.Pacer's single select-loop-with-re-armable-signal shape
// (pacer/pacer.go) for Run.
type Muxer struct {
	log  *slog.Logger
	sink Sink

	targetLatencyMicros atomic.Int64

	mu           sync.Mutex
	initAppended bool
	paused       bool
	closed       bool
	queue        [][]byte

	sig *signal
}

// New constructs a Muxer over sink. mimeCodec is verified against the
// sink's SupportsType before any append is attempted.
func New(sink Sink, mimeCodec string, targetLatencyMicros int64, log *slog.Logger) (*Muxer, error) {
	if log == nil {
		log = slog.Default()
	}
	if !sink.SupportsType(mimeCodec) {
		return nil, ErrUnsupportedType
	}
	m := &Muxer{
		log:  log.With("component", "mux"),
		sink: sink,
		sig:  newSignal(),
	}
	m.targetLatencyMicros.Store(targetLatencyMicros)
	return m, nil
}

// SetTargetLatency updates the target latency used by the trim and
// skip-forward passes, in microseconds.
func (m *Muxer) SetTargetLatency(micros int64) {
	m.targetLatencyMicros.Store(micros)
}

// AppendInit appends the track's init segment. It must be called at
// most once, before any fragment is enqueued.
func (m *Muxer) AppendInit(ctx context.Context, data []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSinkClosed
	}
	if m.initAppended {
		m.mu.Unlock()
		return ErrInitAlreadyAppended
	}
	m.mu.Unlock()

	if err := m.sink.AppendInit(ctx, data); err != nil {
		return err
	}
	m.mu.Lock()
	m.initAppended = true
	m.mu.Unlock()
	return nil
}

// EnqueueFragment queues a fragment for serial append, never blocking
// the producer. If the queue is already at capacity, the oldest
// pending fragment is dropped and logged.
func (m *Muxer) EnqueueFragment(data []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if len(m.queue) >= queueCap {
		m.queue = m.queue[1:]
		m.log.Warn("append queue overflow, dropped oldest fragment", "capacity", queueCap)
	}
	m.queue = append(m.queue, data)
	m.mu.Unlock()
	m.sig.notify()
}

// QueueLen returns the number of fragments currently queued.
func (m *Muxer) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Muxer) popFragmentLocked() ([]byte, bool) {
	if len(m.queue) == 0 {
		return nil, false
	}
	frag := m.queue[0]
	m.queue = m.queue[1:]
	return frag, true
}

// Run drives the serial append loop plus the periodic trim and
// skip-forward passes until ctx is done or Close is called. It is meant
// to be the sole caller of the Sink's append/trim/seek operations;
// callers feed it work through EnqueueFragment and SetPaused instead of
// calling the Sink directly.
func (m *Muxer) Run(ctx context.Context) error {
	trimTicker := time.NewTicker(trimInterval)
	defer trimTicker.Stop()
	skipTicker := time.NewTicker(skipInterval)
	defer skipTicker.Stop()

	for {
		m.mu.Lock()
		frag, ok := m.popFragmentLocked()
		closed := m.closed
		ch := m.sig.wait()
		m.mu.Unlock()

		if closed {
			return nil
		}
		if ok {
			m.appendFragment(ctx, frag)
			continue
		}

		select {
		case <-ch:
		case <-trimTicker.C:
			m.trim(ctx)
		case <-skipTicker.C:
			m.skipForward(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// appendFragment appends data, applying §4.11's failure policy:
// QuotaExceeded triggers a trim-and-retry-once, any other error drops
// the fragment and continues.
func (m *Muxer) appendFragment(ctx context.Context, data []byte) {
	err := m.sink.AppendFragment(ctx, data)
	if err == nil {
		return
	}
	if errors.Is(err, ErrQuotaExceeded) {
		m.trim(ctx)
		if err := m.sink.AppendFragment(ctx, data); err != nil {
			m.log.Warn("append failed after quota retry, dropping fragment", "error", err)
		}
		return
	}
	m.log.Warn("append failed, dropping fragment", "error", err)
}

// trim removes buffered data behind max(10s, target_latency+1s) of the
// current playhead.
func (m *Muxer) trim(ctx context.Context) {
	retention := trimMinRetention
	if target := time.Duration(m.targetLatencyMicros.Load()) * time.Microsecond; target+time.Second > retention {
		retention = target + time.Second
	}
	current := m.sink.CurrentTime().Seconds()
	to := current - retention.Seconds()
	if to <= 0 {
		return
	}
	if err := m.sink.Trim(ctx, 0, to); err != nil {
		m.log.Warn("trim failed", "error", err)
	}
}

// skipForward seeks to the live edge minus target latency when the
// buffered lead over the playhead exceeds target_latency + 100ms, and
// playback is not paused.
func (m *Muxer) skipForward(ctx context.Context) {
	m.mu.Lock()
	paused := m.paused
	m.mu.Unlock()
	if paused {
		return
	}

	targetLatency := time.Duration(m.targetLatencyMicros.Load()) * time.Microsecond
	current := m.sink.CurrentTime().Seconds()
	end := bufferedEnd(m.sink.Buffered())
	threshold := (targetLatency + skipThresholdExtra).Seconds()
	if end-current <= threshold {
		return
	}
	seekTo := end - targetLatency.Seconds()
	if seekTo < 0 {
		seekTo = 0
	}
	if err := m.sink.Seek(time.Duration(seekTo * float64(time.Second))); err != nil {
		m.log.Warn("skip-forward seek failed", "error", err)
	}
}

func bufferedEnd(ranges []Range) float64 {
	end := 0.0
	for _, r := range ranges {
		if r.End > end {
			end = r.End
		}
	}
	return end
}

// SetPaused pauses or resumes the sink. A play failure (resuming from
// pause) is surfaced as an error, and the Muxer's own paused state
// stays true so a caller's observable reflects the failed resume.
func (m *Muxer) SetPaused(paused bool) error {
	if paused {
		err := m.sink.SetPaused(true)
		m.mu.Lock()
		m.paused = true
		m.mu.Unlock()
		return err
	}

	if err := m.sink.SetPaused(false); err != nil {
		m.mu.Lock()
		m.paused = true
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	return nil
}

// Paused reports the Muxer's current pause state.
func (m *Muxer) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Close stops Run and discards any queued fragments.
func (m *Muxer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	m.sig.notify()
}
