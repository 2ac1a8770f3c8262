// Package mux implements the MSE-style muxer (C14): it feeds decoded
// init segments and fragments to an opaque media Sink, enforces a
// rolling buffer window (periodic trim behind the playhead, periodic
// skip-forward when latency exceeds target), and propagates pause/play.
//
// Sink models §9's abstract media-sink capability surface
// ({append_init, append_fragment, set_paused, get_buffered,
// get_current_time}, plus SupportsType, Trim and Seek) rather than a concrete MediaSource/SourceBuffer
// binding, so this package has no browser dependency: a real Sink
// implementation lives at the host integration boundary.
package mux
