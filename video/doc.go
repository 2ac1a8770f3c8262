// Package video implements the video source (C12): rendition selection
// against a catalog, a make-before-break rendition switcher, the
// most-recent-decoded-frame presentation observable, and cumulative
// delivery stats.
//
// This package models the decision logic of §4.9 only; it has no
// dependency on an actual video decoder or renderer. A caller wires it
// to a real pipeline by supplying a SupportProbe (whatever the host
// platform's decoder capability check looks like) and by feeding
// decoded frames through LatestFrame as they become available.
package video
