// Package moq implements the wire-protocol codec for the client side of a
// Media-over-QUIC transport: QUIC-style VarInt coding, length-prefixed
// message framing, control-stream message types (session setup, announce,
// subscribe), data-stream group/frame framing, and the media-format
// conversion helpers (Annex B NALU parsing, ADTS stripping, decoder
// configuration record parsing) needed to hand catalog-described codec
// data to a decoder.
//
// This package contains no session or track-lifecycle logic; those
// higher-level concerns live in [github.com/go-hang/hang/session],
// [github.com/go-hang/hang/subscribe], and [github.com/go-hang/hang/track].
package moq
