// Package track implements the in-memory reactive data model shared by the
// publisher and subscriber: a Broadcast owns a set of Tracks, each Track
// owns an ordered sequence of Groups, and each Group owns an ordered FIFO
// of Frames.
//
// All three are single-writer/multi-reader structures. Readers block on a
// change-notification signal and re-check state after every wake-up,
// following the "check, register waker, re-check, await" discipline: the
// waker channel is captured under the same lock used to mutate state, so a
// notify that races a reader's check can never be missed.
package track
