package video

import "sync/atomic"

// Stats holds the monotonic delivery counters of §4.9: total frames
// and bytes received across the video source's lifetime, plus the
// presentation timestamp of the most recently observed frame.
//
// Grounded on distribution/relay.go's atomic.Int64 stats fields,
// sized to the source's microsecond timestamps.
type Stats struct {
	frameCount    atomic.Int64
	bytesReceived atomic.Int64
	lastTimestamp atomic.Int64
}

// RecordFrame increments the frame and byte counters and advances
// LastTimestamp. It is safe to call RecordFrame out of timestamp order;
// LastTimestamp only moves forward.
func (s *Stats) RecordFrame(timestampMicros int64, bytes int) {
	s.frameCount.Add(1)
	s.bytesReceived.Add(int64(bytes))
	for {
		prev := s.lastTimestamp.Load()
		if timestampMicros <= prev {
			return
		}
		if s.lastTimestamp.CompareAndSwap(prev, timestampMicros) {
			return
		}
	}
}

// FrameCount returns the total number of frames recorded.
func (s *Stats) FrameCount() int64 { return s.frameCount.Load() }

// BytesReceived returns the total number of bytes recorded.
func (s *Stats) BytesReceived() int64 { return s.bytesReceived.Load() }

// LastTimestamp returns the presentation timestamp, in microseconds, of
// the most recently recorded frame, or 0 if none has been recorded.
func (s *Stats) LastTimestamp() int64 { return s.lastTimestamp.Load() }
