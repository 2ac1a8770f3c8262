package track

import (
	"context"
	"log/slog"
	"sync"
)

// Track is a named live stream within a Broadcast: an ordered collection
// of Groups by strictly increasing sequence number, plus three mutable
// control values negotiated with the peer.
type Track struct {
	Name string

	log *slog.Logger

	mu           sync.Mutex
	priority     uint8
	maxLatencyMS uint64
	ordered      bool

	groups    []*Group
	pos       int
	highestSeq uint64
	haveSeq    bool

	closed     bool
	closeCause error
	sig        *signal
}

// NewTrack constructs an open Track. If log is nil, slog.Default() is used.
func NewTrack(name string, log *slog.Logger) *Track {
	if log == nil {
		log = slog.Default()
	}
	return &Track{
		Name: name,
		log:  log.With("component", "track", "track", name),
		sig:  newSignal(),
	}
}

// Priority returns the track's current priority.
func (t *Track) Priority() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority updates the track's priority.
func (t *Track) SetPriority(p uint8) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

// MaxLatencyMS returns the track's current max-latency control value.
func (t *Track) MaxLatencyMS() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxLatencyMS
}

// SetMaxLatencyMS updates the track's max-latency control value.
func (t *Track) SetMaxLatencyMS(ms uint64) {
	t.mu.Lock()
	t.maxLatencyMS = ms
	t.mu.Unlock()
}

// Ordered returns the track's current ordered-delivery flag.
func (t *Track) Ordered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ordered
}

// SetOrdered updates the track's ordered-delivery flag.
func (t *Track) SetOrdered(ordered bool) {
	t.mu.Lock()
	t.ordered = ordered
	t.mu.Unlock()
}

// InsertGroup appends g to the track if its sequence is strictly greater
// than the highest previously inserted sequence. A late group (sequence
// at or below the highest seen) is closed immediately with ErrLateGroup
// and never becomes observable through NextGroup.
func (t *Track) InsertGroup(g *Group) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		g.Close(ErrClosed)
		return ErrClosed
	}
	if t.haveSeq && g.Sequence <= t.highestSeq {
		t.mu.Unlock()
		t.log.Warn("dropping late group", "sequence", g.Sequence, "highest", t.highestSeq)
		g.Close(ErrLateGroup)
		return ErrLateGroup
	}
	t.highestSeq = g.Sequence
	t.haveSeq = true
	t.groups = append(t.groups, g)
	t.mu.Unlock()
	t.sig.notify()
	return nil
}

// NextGroup returns the next group in insertion order, blocking until one
// is available, the track closes, or ctx is done. Once the track is closed
// and its queue drained, NextGroup returns the track's close cause (or
// ErrClosed if none was given) on every subsequent call.
func (t *Track) NextGroup(ctx context.Context) (*Group, error) {
	for {
		t.mu.Lock()
		if t.pos < len(t.groups) {
			g := t.groups[t.pos]
			t.pos++
			t.mu.Unlock()
			return g, nil
		}
		if t.closed {
			cause := t.closeCause
			t.mu.Unlock()
			if cause == nil {
				cause = ErrClosed
			}
			return nil, cause
		}
		ch := t.sig.wait()
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close closes the track and every group it has ever held with cause.
// Closing an already-closed track is a no-op.
func (t *Track) Close(cause error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeCause = cause
	groups := t.groups
	t.mu.Unlock()

	for _, g := range groups {
		g.Close(cause)
	}
	t.sig.notify()
}

// Closed reports whether the track has been closed.
func (t *Track) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
