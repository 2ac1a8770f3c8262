// Package path implements the hierarchical broadcast naming scheme used to
// address broadcasts on a relay: a validated, immutable sequence of
// non-empty UTF-8 segments.
package path
