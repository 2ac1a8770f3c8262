package track

import "errors"

// ErrClosed is returned by readers once their Track/Group has been closed
// without an explicit cause and its queued items are drained.
var ErrClosed = errors.New("track: closed")

// ErrFirstFrameNotKeyframe indicates an attempt to append a non-keyframe
// as the first frame of a Group, violating the group-starts-on-keyframe
// invariant.
var ErrFirstFrameNotKeyframe = errors.New("track: first frame of group must be a keyframe")

// ErrGroupClosed indicates an append to a Group that has already closed.
var ErrGroupClosed = errors.New("track: group already closed")

// ErrLateGroup indicates a group sequence at or below the highest
// previously inserted sequence on the Track.
var ErrLateGroup = errors.New("track: late group, sequence already superseded")
