package track

import (
	"log/slog"
	"sync"
)

// Broadcast is the top-level container addressed by a path.Path,
// exposing a mutable set of Tracks. Consumer-side, it holds the Tracks
// the application has requested; producer-side, the Tracks it has
// committed to serve. A Track is bound to exactly one Broadcast for its
// lifetime; closing a Broadcast closes all its Tracks with the same
// cause.
//
// Grounded on the teacher's stream.Manager: a name-keyed map guarded by a
// single mutex, with a component-scoped logger, generalized from a flat
// registry of streams into an owned tree of Tracks.
type Broadcast struct {
	log *slog.Logger

	mu     sync.RWMutex
	tracks map[string]*Track
	closed bool
	cause  error
}

// NewBroadcast constructs an empty, open Broadcast. If log is nil,
// slog.Default() is used.
func NewBroadcast(log *slog.Logger) *Broadcast {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcast{
		log:    log.With("component", "broadcast"),
		tracks: make(map[string]*Track),
	}
}

// Track returns the named track and true if it exists.
func (b *Broadcast) Track(name string) (*Track, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tracks[name]
	return t, ok
}

// AddTrack registers t under its name. Returns false without replacing
// the existing entry if a track with this name is already registered, or
// if the broadcast is closed.
func (b *Broadcast) AddTrack(t *Track) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.log.Warn("rejecting track add on closed broadcast", "track", t.Name)
		return false
	}
	if _, exists := b.tracks[t.Name]; exists {
		b.log.Warn("track already exists, rejecting duplicate", "track", t.Name)
		return false
	}
	b.tracks[t.Name] = t
	b.log.Info("track added", "track", t.Name)
	return true
}

// RemoveTrack unregisters and closes the named track with cause. It is a
// no-op if the track is not present.
func (b *Broadcast) RemoveTrack(name string, cause error) {
	b.mu.Lock()
	t, ok := b.tracks[name]
	if ok {
		delete(b.tracks, name)
	}
	b.mu.Unlock()

	if ok {
		t.Close(cause)
		b.log.Info("track removed", "track", name)
	}
}

// Tracks returns a snapshot of all currently registered tracks.
func (b *Broadcast) Tracks() []*Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Track, 0, len(b.tracks))
	for _, t := range b.tracks {
		out = append(out, t)
	}
	return out
}

// Close closes the broadcast and every track it owns with cause. Closing
// an already-closed broadcast is a no-op.
func (b *Broadcast) Close(cause error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cause = cause
	tracks := make([]*Track, 0, len(b.tracks))
	for _, t := range b.tracks {
		tracks = append(tracks, t)
	}
	b.mu.Unlock()

	for _, t := range tracks {
		t.Close(cause)
	}
	b.log.Info("broadcast closed", "cause", cause)
}

// Closed reports whether the broadcast has been closed.
func (b *Broadcast) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
