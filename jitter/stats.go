package jitter

// Stats is a point-in-time snapshot of how much a Consumer has had to
// discard to stay within its latency bound. The zero value describes a
// Consumer that has dropped nothing.
//
// Grounded on the teacher's trySendVideo/damagedGroup pattern
// (distribution/session_helpers.go): there, a dropped frame poisons the
// rest of its GOP so every subsequent delta frame in that group is
// dropped too, counted against videoDropped. This module drops whole
// groups rather than individual frames (a group arrives as a discrete
// unidirectional stream, not a frame at a time chosen by a send queue),
// so the equivalent "damaged GOP" is a group that arrives after the
// window has already moved past its sequence, or one skipped outright
// to honor the target latency: neither can ever be decoded.
type Stats struct {
	GroupsSuperseded        int64
	GroupsSkippedForLatency int64
}

// DamagedGroupsDropped returns the total number of groups discarded
// because they could never be decoded: arrived after the window had
// already advanced past their sequence (superseded) or were skipped to
// honor the target latency bound.
func (s Stats) DamagedGroupsDropped() int64 {
	return s.GroupsSuperseded + s.GroupsSkippedForLatency
}
