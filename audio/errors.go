package audio

import "errors"

// ErrChannelMismatch indicates a Write or Read call supplied a sample
// buffer whose channel count does not match the ring buffer's.
var ErrChannelMismatch = errors.New("audio: channel count mismatch")
