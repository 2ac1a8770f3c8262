// Package publish implements the producer side of a MoQ session: a
// Publisher owns a path-keyed map of Broadcasts and answers incoming
// AnnounceInterest and Subscribe requests against it.
//
// Publisher itself is transport-agnostic — it has no notion of a QUIC
// connection or control stream. It exposes plain Go methods
// (Announce/Unannounce/WatchAnnouncements/HandleSubscribe) that the
// session layer calls in response to decoded moq control messages and
// incoming stream requests, keeping the wire protocol and the announce/
// subscribe bookkeeping independently testable.
package publish
