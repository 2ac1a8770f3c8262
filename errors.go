package hang

import "errors"

// The error kinds of spec.md §7. Component-level packages raise their
// own sentinels (session.ErrReset, catalog.SchemaError,
// video.ErrNoSupportedRendition, ...); this package's facade wraps them
// against these broader classification sentinels with fmt.Errorf("%w:
// %w", ...) so a caller can errors.Is against either the specific cause
// or the general kind.
var (
	// ErrTransport covers connection/stream-level failures below the
	// MoQ protocol layer.
	ErrTransport = errors.New("hang: transport error")

	// ErrProtocol covers MoQ-level violations: a peer sending a
	// message that does not belong, a reference to an id it never
	// allocated, a malformed control message.
	ErrProtocol = errors.New("hang: protocol error")

	// ErrNotFound covers "no such broadcast" and "no such track".
	ErrNotFound = errors.New("hang: not found")

	// ErrTimeout covers the subscribe-setup soft timeout and any other
	// operation bounded by a deadline in this module.
	ErrTimeout = errors.New("hang: timeout")

	// ErrSchema wraps a catalog document that failed validation.
	ErrSchema = errors.New("hang: schema error")

	// ErrCodecUnsupported covers "no rendition in the catalog is
	// decodable on this platform".
	ErrCodecUnsupported = errors.New("hang: codec unsupported")

	// ErrBufferOverflow covers an append queue or ring buffer that had
	// to discard data to stay within its bound.
	ErrBufferOverflow = errors.New("hang: buffer overflow")

	// ErrUnderflow covers a read that returned less than requested
	// because no more data was available yet.
	ErrUnderflow = errors.New("hang: underflow")
)
