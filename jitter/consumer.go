package jitter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-hang/hang/track"
)

// Consumer is the per-track reordering/jitter-dropping decode pipeline
// described in §4.7. It is safe for one writer side (InsertGroup,
// NotifyFrame, SetTargetLatency) and one reader side (Decode) to use
// concurrently, but concurrent Decode calls on the same Consumer are a
// contract violation.
type Consumer struct {
	targetLatencyMicros atomic.Int64

	groupsSuperseded atomic.Int64
	groupsSkipped    atomic.Int64

	mu         sync.Mutex
	sig        *signal
	groups     []*track.Group // sorted ascending by Sequence; groups[0] is active
	haveActive bool
	active     uint64
	decoding   bool
}

// NewConsumer creates a Consumer with the given initial target latency in
// microseconds.
func NewConsumer(targetLatencyMicros int64) *Consumer {
	c := &Consumer{sig: newSignal()}
	c.targetLatencyMicros.Store(targetLatencyMicros)
	return c
}

// TargetLatency returns the current target latency in microseconds.
func (c *Consumer) TargetLatency() int64 {
	return c.targetLatencyMicros.Load()
}

// SetTargetLatency updates the target latency. The buffer observes the
// new value immediately: shrinking it may trigger skips on the next
// evaluation, enlarging it only grows tolerance.
func (c *Consumer) SetTargetLatency(micros int64) {
	c.targetLatencyMicros.Store(micros)
	c.mu.Lock()
	c.evaluateLatencyLocked()
	c.mu.Unlock()
	c.sig.notify()
}

// InsertGroup admits a new group into the consumer's window. Groups with
// a sequence at or below the current active sequence are dropped: closed
// with ErrGroupSuperseded and ErrGroupSuperseded is returned. Otherwise
// the group is inserted in sequence order and, if it is the first group
// ever seen, becomes active.
func (c *Consumer) InsertGroup(g *track.Group) error {
	c.mu.Lock()
	if c.haveActive && g.Sequence <= c.active {
		c.mu.Unlock()
		c.groupsSuperseded.Add(1)
		g.Close(ErrGroupSuperseded)
		return ErrGroupSuperseded
	}

	i := 0
	for ; i < len(c.groups); i++ {
		if c.groups[i].Sequence > g.Sequence {
			break
		}
	}
	c.groups = append(c.groups, nil)
	copy(c.groups[i+1:], c.groups[i:])
	c.groups[i] = g

	if !c.haveActive {
		c.haveActive = true
		c.active = g.Sequence
	}
	c.evaluateLatencyLocked()
	c.mu.Unlock()
	c.sig.notify()
	return nil
}

// NotifyFrame re-evaluates the latency bound and wakes any blocked
// Decode call. Callers append frames to a Group directly (package track)
// and must call NotifyFrame afterward so the consumer can react even
// while Decode is parked on a different group.
func (c *Consumer) NotifyFrame() {
	c.mu.Lock()
	c.evaluateLatencyLocked()
	c.mu.Unlock()
	c.sig.notify()
}

// evaluateLatencyLocked implements §4.7's latency enforcement: while at
// least two groups remain and the spread between the newest observed
// timestamp and the oldest unconsumed timestamp across all groups exceeds
// the target latency, the oldest group is skipped (closed, removed, and
// active advances to the next group's sequence). Must be called with
// c.mu held.
func (c *Consumer) evaluateLatencyLocked() {
	target := c.targetLatencyMicros.Load()
	for len(c.groups) >= 2 {
		latest, haveLatest := int64(0), false
		oldest, haveOldest := int64(0), false
		for _, g := range c.groups {
			if ts, ok := g.LatestTimestamp(); ok {
				if !haveLatest || ts > latest {
					latest, haveLatest = ts, true
				}
			}
			if ts, ok := g.OldestUnconsumedTimestamp(); ok {
				if !haveOldest || ts < oldest {
					oldest, haveOldest = ts, true
				}
			}
		}
		if !haveLatest || !haveOldest || latest-oldest <= target {
			return
		}
		skipped := c.groups[0]
		c.groups = c.groups[1:]
		c.groupsSkipped.Add(1)
		skipped.Close(ErrSkippedForLatency)
		if len(c.groups) > 0 {
			c.active = c.groups[0].Sequence
		}
	}
}

// advanceDrainedLocked drops groups from the front of the window that
// have closed cleanly and have no frames left, advancing active to the
// next group's sequence. Must be called with c.mu held.
func (c *Consumer) advanceDrainedLocked() {
	for len(c.groups) > 0 && c.groups[0].Drained() {
		c.groups = c.groups[1:]
		if len(c.groups) > 0 {
			c.active = c.groups[0].Sequence
		}
	}
}

// Decode returns the next frame from the active group in insertion
// order, blocking until one is available, ctx is done, or the active
// group is skipped/drained and a successor becomes available. Concurrent
// calls to Decode on the same Consumer return ErrDecodeInProgress.
func (c *Consumer) Decode(ctx context.Context) (track.Frame, error) {
	c.mu.Lock()
	if c.decoding {
		c.mu.Unlock()
		return track.Frame{}, ErrDecodeInProgress
	}
	c.decoding = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.decoding = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		c.evaluateLatencyLocked()
		c.advanceDrainedLocked()
		if len(c.groups) == 0 {
			ch := c.sig.wait()
			c.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return track.Frame{}, ctx.Err()
			}
		}
		active := c.groups[0]
		groupCh := active.WaitChannel()
		sigCh := c.sig.wait()
		c.mu.Unlock()

		if f, ok := active.TryReadFrame(); ok {
			return f, nil
		}

		select {
		case <-groupCh:
		case <-sigCh:
		case <-ctx.Done():
			return track.Frame{}, ctx.Err()
		}
	}
}

// Stats returns a snapshot of this Consumer's discard counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		GroupsSuperseded:        c.groupsSuperseded.Load(),
		GroupsSkippedForLatency: c.groupsSkipped.Load(),
	}
}

// ActiveSequence returns the sequence of the group currently being
// drained, and whether one exists.
func (c *Consumer) ActiveSequence() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.groups) == 0 {
		return 0, false
	}
	return c.groups[0].Sequence, true
}
