package subscribe

import "errors"

// ErrUnknownSubscription indicates an inbound Group stream referenced a
// subscribe id this Subscriber never assigned. Per spec.md §4.3 this is a hard
// protocol error: a subscribe id at or above the next-to-assign value
// can never correspond to a real outstanding subscription, so the
// caller should terminate the connection rather than recover.
var ErrUnknownSubscription = errors.New("subscribe: unknown subscription id")

// ErrAlreadyRegistered indicates Register was called twice for the same
// subscribe id without an intervening Remove.
var ErrAlreadyRegistered = errors.New("subscribe: id already registered")

// ErrRequestIDExhausted indicates Allocate was called after the peer's
// advertised MAX_REQUEST_ID ceiling (set via SetMaxRequestID) had
// already been reached: the caller must wait for a further
// MAX_REQUEST_ID raising the ceiling before subscribing again.
var ErrRequestIDExhausted = errors.New("subscribe: request id ceiling exhausted")
