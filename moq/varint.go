package moq

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Varint length classes per the QUIC transport wire format: the top two
// bits of the first byte select 1/2/4/8 byte encodings, carrying values up
// to 2^6-1, 2^14-1, 2^30-1, and 2^62-1 respectively.
const MaxVarInt = uint64(1)<<62 - 1

// AppendVarInt appends the smallest encoding of v that fits, per §4.1. It
// panics if v exceeds MaxVarInt; callers that accept untrusted values
// destined for the wire should check against MaxVarInt first and return
// ErrVarIntOverflow instead of calling this.
func AppendVarInt(buf []byte, v uint64) []byte {
	if v > MaxVarInt {
		panic(ErrVarIntOverflow)
	}
	return quicvarint.Append(buf, v)
}

// EncodeVarInt returns the wire encoding of v, or ErrVarIntOverflow if v
// exceeds 2^62-1.
func EncodeVarInt(v uint64) ([]byte, error) {
	if v > MaxVarInt {
		return nil, ErrVarIntOverflow
	}
	return quicvarint.Append(nil, v), nil
}

// DecodeVarInt reads a single varint from the front of b, returning the
// value and the number of bytes consumed.
func DecodeVarInt(b []byte) (uint64, int, error) {
	return quicvarint.Parse(b)
}

// ReadVarInt reads a single varint from r one byte at a time.
func ReadVarInt(r io.ByteReader) (uint64, error) {
	return quicvarint.Read(r)
}

// VarIntLen returns the number of bytes EncodeVarInt(v) would produce.
func VarIntLen(v uint64) int {
	return quicvarint.Len(v)
}
