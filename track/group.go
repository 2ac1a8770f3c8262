package track

import (
	"context"
	"sync"
)

// Group is an atomic keyframe-initiated unit within a Track: an ordered
// FIFO of Frames addressed by a monotonically increasing sequence number.
// A Group is owned by exactly one Track; readers observe it through
// ReadFrame but never mutate it directly.
type Group struct {
	Sequence uint64

	mu         sync.Mutex
	frames     []Frame
	pos        int
	closed     bool
	closeCause error
	sig        *signal
}

// NewGroup constructs an empty, open Group at the given sequence.
func NewGroup(sequence uint64) *Group {
	return &Group{
		Sequence: sequence,
		sig:      newSignal(),
	}
}

// AppendFrame adds f to the end of the group's frame queue. The first
// frame appended to a group must be a keyframe. Appending to a closed
// group fails with ErrGroupClosed.
func (g *Group) AppendFrame(f Frame) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGroupClosed
	}
	if len(g.frames) == 0 && !f.Keyframe {
		return ErrFirstFrameNotKeyframe
	}
	g.frames = append(g.frames, f)
	g.sig.notify()
	return nil
}

// ReadFrame returns the next frame in order, blocking until one is
// available, the group closes, or ctx is done. Once the group is closed
// and its queue drained, ReadFrame returns the group's close cause (or
// ErrClosed if none was given) on every subsequent call.
func (g *Group) ReadFrame(ctx context.Context) (Frame, error) {
	for {
		g.mu.Lock()
		if g.pos < len(g.frames) {
			f := g.frames[g.pos]
			g.pos++
			g.mu.Unlock()
			return f, nil
		}
		if g.closed {
			cause := g.closeCause
			g.mu.Unlock()
			if cause == nil {
				cause = ErrClosed
			}
			return Frame{}, cause
		}
		ch := g.sig.wait()
		g.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// Close marks the group closed with the given cause (nil meaning a clean
// end-of-stream). No frame may be appended after Close. Closing an
// already-closed group is a no-op.
func (g *Group) Close(cause error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.closeCause = cause
	g.mu.Unlock()
	g.sig.notify()
}

// Closed reports whether the group has been closed.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Drained reports whether the group is closed and has no unconsumed
// frames left, i.e. ReadFrame would return the close cause immediately.
func (g *Group) Drained() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed && g.pos >= len(g.frames)
}

// TryReadFrame pops the next frame without blocking. It reports false if
// no frame is currently queued, whether or not the group is closed.
func (g *Group) TryReadFrame() (Frame, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pos < len(g.frames) {
		f := g.frames[g.pos]
		g.pos++
		return f, true
	}
	return Frame{}, false
}

// WaitChannel returns the channel that closes on the group's next state
// change (a frame appended or the group closing). Callers should register
// this before re-checking state, per the package's wake-loss-safe
// discipline.
func (g *Group) WaitChannel() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sig.wait()
}

// LatestTimestamp returns the timestamp of the most recently appended
// frame, and whether any frame has been appended yet.
func (g *Group) LatestTimestamp() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.frames) == 0 {
		return 0, false
	}
	return g.frames[len(g.frames)-1].Timestamp, true
}

// OldestUnconsumedTimestamp returns the timestamp of the next frame a
// reader would receive, and whether one is queued.
func (g *Group) OldestUnconsumedTimestamp() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pos >= len(g.frames) {
		return 0, false
	}
	return g.frames[g.pos].Timestamp, true
}
