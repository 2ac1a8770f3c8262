// Package subscribe implements the consumer side of a MoQ session: a
// Subscriber owns a subscribe-id-keyed map of Tracks it has requested
// from a peer, and demultiplexes inbound Group data streams onto them.
//
// Like publish.Publisher, Subscriber is transport-agnostic: it has no
// notion of a QUIC connection. The session layer assigns subscribe ids
// via NextSubscribeID when it sends a Subscribe control message, and
// feeds each inbound unidirectional data stream's header and reader to
// IngestGroupStream once it has parsed the moq.GroupHeader off the wire.
package subscribe
