package mux

import "errors"

// ErrSinkClosed indicates an operation against a Muxer whose Sink has
// already been torn down.
var ErrSinkClosed = errors.New("mux: sink closed")

// ErrUnsupportedType indicates the Sink rejected the MIME+codec string
// derived from the catalog for this source buffer.
var ErrUnsupportedType = errors.New("mux: sink does not support media type")

// ErrInitAlreadyAppended indicates a second attempt to append the init
// segment on a Muxer that has already appended one.
var ErrInitAlreadyAppended = errors.New("mux: init segment already appended")

// ErrQuotaExceeded is the sentinel a Sink implementation returns from
// AppendFragment when the underlying media sink rejected the append for
// being full. The Muxer responds by trimming and retrying once.
var ErrQuotaExceeded = errors.New("mux: sink quota exceeded")
