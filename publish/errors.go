package publish

import "errors"

// ErrBroadcastNotFound indicates a Subscribe referenced a path with no
// registered Broadcast.
var ErrBroadcastNotFound = errors.New("publish: broadcast not found")

// ErrTrackNotFound indicates a Subscribe referenced a track name not
// present on the target Broadcast.
var ErrTrackNotFound = errors.New("publish: track not found")

// ErrAlreadyAnnounced indicates Announce was called for a path that is
// already registered.
var ErrAlreadyAnnounced = errors.New("publish: path already announced")
