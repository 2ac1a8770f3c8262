// Package pacer implements the Sync scheduler described in §4.8: it
// converts a stream-local frame timestamp into a wall-clock "present at"
// time, tracking the earliest-observed arrival offset across all streams
// as a shared reference point and adding a live-readable target latency
// as a uniform presentation delay.
//
// Package name avoids colliding with the standard library's sync
// package; the type itself is named Pacer rather than Sync for the same
// reason.
package pacer
