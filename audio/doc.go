// Package audio implements the audio ring buffer (C13): a circular
// per-channel float32 buffer that absorbs jitter between arriving
// decoded audio and a downstream pull-based sink (an audio worklet or
// equivalent), sized to a configured target latency.
//
// Buffer is not safe for concurrent Write and Read calls without
// external synchronization beyond what it documents; callers on a
// single-threaded cooperative executor (the model assumed by the rest
// of this module) never need more than that.
package audio
