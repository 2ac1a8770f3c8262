package video

import "sync"

// DecodedFrame is an opaque decoded video frame. Release is called
// exactly once, when the frame is no longer the presentation's latest
// frame — either superseded by a newer one or cleared by Close. It may
// be nil for frame representations that own no external resource.
type DecodedFrame struct {
	PresentationMicros int64
	Release            func()
}

// LatestFrame holds the presentation invariant of §4.9: the observable
// is always the most recently decoded frame whose presentation time has
// arrived, and storing a replacement releases whatever it replaces.
//
// Grounded on the teacher's one-shot-then-overwrite channel pattern in
// distribution/relay.go, generalized from "set once" to "set repeatedly,
// releasing the previous value".
type LatestFrame struct {
	mu      sync.Mutex
	current *DecodedFrame
}

// Set stores f as the current frame, releasing whatever frame it
// replaces. Passing a nil frame clears the observable without setting a
// new one.
func (lf *LatestFrame) Set(f *DecodedFrame) {
	lf.mu.Lock()
	prev := lf.current
	lf.current = f
	lf.mu.Unlock()

	if prev != nil && prev.Release != nil {
		prev.Release()
	}
}

// Get returns the current frame, or nil if none has been set (or the
// observable has been cleared).
func (lf *LatestFrame) Get() *DecodedFrame {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.current
}

// Close releases and clears the current frame, if any.
func (lf *LatestFrame) Close() {
	lf.Set(nil)
}
