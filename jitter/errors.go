package jitter

import "errors"

// ErrGroupSuperseded is the close cause applied to a group whose sequence
// is at or below the consumer's active sequence at insertion time.
var ErrGroupSuperseded = errors.New("jitter: group superseded by active sequence")

// ErrSkippedForLatency is the close cause applied to a group dropped
// because the spread between the newest and oldest unconsumed timestamps
// across groups exceeded the target latency.
var ErrSkippedForLatency = errors.New("jitter: group skipped, exceeded target latency")

// ErrDecodeInProgress indicates a concurrent call to Consumer.Decode; the
// spec treats concurrent decode calls as a contract violation rather than
// something to serialize transparently.
var ErrDecodeInProgress = errors.New("jitter: concurrent decode call")
