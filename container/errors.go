package container

import "errors"

// ErrTruncatedBox indicates a box header or body ran past the end of the
// buffer being parsed.
var ErrTruncatedBox = errors.New("container: truncated box")

// ErrBoxNotFound indicates a required box (moov, moof, mdat, tfdt, trun,
// tkhd, hdlr, …) was absent from the parsed structure.
var ErrBoxNotFound = errors.New("container: required box not found")

// ErrNoInitSegment indicates SplitInitSegment found no moov box in its
// input, so there was no init segment to split off.
var ErrNoInitSegment = errors.New("container: no init segment found")
