package mux

import (
	"context"
	"time"
)

// Range is a buffered time interval [Start, End) in seconds, the same
// shape as the BufferedRanges observable of spec.md §6.
type Range struct {
	Start float64
	End   float64
}

// Sink is the abstract media-sink capability surface of §9: a single
// source buffer (one per media type) on an opaque media element. The
// MSE path implements it directly against MediaSource/SourceBuffer. The
// WebCodecs-style path of this module does not use a Sink: it hands
// encoded chunks to callbacks. The Muxer calls every method below.
type Sink interface {
	// SupportsType reports whether the sink can accept media encoded as
	// mimeCodec (e.g. `video/mp4; codecs="avc1.640028"`).
	SupportsType(mimeCodec string) bool

	// AppendInit appends the track's init segment. Called at most once
	// per Sink. Blocks until the sink's update-end signal fires.
	AppendInit(ctx context.Context, data []byte) error

	// AppendFragment appends one media fragment. Blocks until the
	// sink's update-end signal fires. Appends are serialized by the
	// Muxer; the Sink never sees concurrent calls.
	AppendFragment(ctx context.Context, data []byte) error

	// Trim removes buffered data in [from, to) seconds.
	Trim(ctx context.Context, from, to float64) error

	// Buffered returns the sink's current buffered ranges in seconds.
	Buffered() []Range

	// CurrentTime returns the sink's current playhead position.
	CurrentTime() time.Duration

	// Seek moves the playhead to t.
	Seek(t time.Duration) error

	// SetPaused pauses or resumes playback. A play failure (paused
	// being set to false) is returned to the caller so it can be
	// surfaced upstream as paused=true.
	SetPaused(paused bool) error
}
