package path

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrEmptySegment indicates a path string contained an empty component
// (a leading, trailing, or doubled separator).
var ErrEmptySegment = errors.New("path: empty segment")

// ErrInvalidByte indicates a path string contained a backslash, or a
// single segment contained a '/' or a backslash; both are rejected to keep
// the separator unambiguous across platforms.
var ErrInvalidByte = errors.New("path: invalid byte")

// ErrInvalidUTF8 indicates a path string was not valid UTF-8.
var ErrInvalidUTF8 = errors.New("path: invalid UTF-8")

const separator = '/'

// Path is a validated hierarchical broadcast name: a sequence of
// non-empty segments. The zero value is the empty path. A Path is
// immutable once constructed; every operation that would change it
// returns a new value.
type Path struct {
	segments []string
}

// New parses and validates s, splitting on '/'. An empty string yields the
// empty Path. Empty segments (leading, trailing, or doubled separators)
// and backslashes are rejected.
func New(s string) (Path, error) {
	if !utf8.ValidString(s) {
		return Path{}, ErrInvalidUTF8
	}
	if strings.ContainsRune(s, '\\') {
		return Path{}, ErrInvalidByte
	}
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, string(separator))
	segments := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			return Path{}, ErrEmptySegment
		}
		segments[i] = p
	}
	return Path{segments: segments}, nil
}

// FromSegments builds a Path directly from already-split segments (e.g. a
// MoQ namespace tuple read off the wire), applying the same validation as
// Append to each one.
func FromSegments(segments []string) (Path, error) {
	out := make([]string, len(segments))
	for i, s := range segments {
		if s == "" {
			return Path{}, ErrEmptySegment
		}
		if strings.ContainsRune(s, separator) || strings.ContainsRune(s, '\\') {
			return Path{}, ErrInvalidByte
		}
		if !utf8.ValidString(s) {
			return Path{}, ErrInvalidUTF8
		}
		out[i] = s
	}
	return Path{segments: out}, nil
}

// Empty reports whether p has no segments.
func (p Path) Empty() bool {
	return len(p.segments) == 0
}

// Segments returns a copy of p's segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// String renders p back to its '/'-separated form.
func (p Path) String() string {
	return strings.Join(p.segments, string(separator))
}

// Append returns a new Path with segment appended. segment must be
// non-empty and must not contain '/' or '\\'.
func (p Path) Append(segment string) (Path, error) {
	if segment == "" {
		return Path{}, ErrEmptySegment
	}
	if strings.ContainsRune(segment, separator) || strings.ContainsRune(segment, '\\') {
		return Path{}, ErrInvalidByte
	}
	if !utf8.ValidString(segment) {
		return Path{}, ErrInvalidUTF8
	}
	out := make([]string, len(p.segments)+1)
	copy(out, p.segments)
	out[len(p.segments)] = segment
	return Path{segments: out}, nil
}

// Join returns a new Path with suffix's segments appended after p's.
func (p Path) Join(suffix Path) Path {
	out := make([]string, 0, len(p.segments)+len(suffix.segments))
	out = append(out, p.segments...)
	out = append(out, suffix.segments...)
	return Path{segments: out}
}

// StripPrefix removes prefix from the front of p, returning the remainder
// and true if prefix is in fact a prefix of p, or the zero Path and false
// otherwise. The empty Path is a prefix of every path.
func (p Path) StripPrefix(prefix Path) (Path, bool) {
	if len(prefix.segments) > len(p.segments) {
		return Path{}, false
	}
	for i, seg := range prefix.segments {
		if p.segments[i] != seg {
			return Path{}, false
		}
	}
	remainder := p.segments[len(prefix.segments):]
	if len(remainder) == 0 {
		return Path{}, true
	}
	out := make([]string, len(remainder))
	copy(out, remainder)
	return Path{segments: out}, true
}

// Equal reports whether p and other have identical segments.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}
