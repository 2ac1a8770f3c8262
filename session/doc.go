// Package session implements the connection supervisor (C7): the state
// machine that dials a MoQ server, performs version negotiation, and
// reconnects with exponential backoff on failure.
//
// Supervisor is deliberately ignorant of WebTransport/QUIC specifics: it
// depends on the small Dialer/Conn interfaces defined here so it can be
// unit tested against an in-process fake, following the teacher's own
// preference for testing session logic without a real network (see
// moq_session_test.go's use of in-memory pipes rather than a live QUIC
// listener).
package session
