// Package jitter implements the per-track reordering consumer: it holds a
// window of Groups, keeps an "active" group that decode() drains in order,
// and drops the oldest group once the spread between the newest observed
// timestamp and the oldest unconsumed timestamp exceeds a live-readable
// target latency.
//
// Groups arrive and fill concurrently with decode() draining the active
// one; Consumer is not itself responsible for reading off the wire, only
// for sequencing and latency-driven admission. Callers append frames to a
// Group directly (see package track) and call Consumer.NotifyFrame after
// each append so the consumer can re-evaluate latency even while decode()
// is blocked on a different group.
package jitter
