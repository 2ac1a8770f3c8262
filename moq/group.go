package moq

import "io"

// Stream kind discriminators: the first byte of every stream (control or
// data) identifies how to interpret the rest of it (§6).
const (
	StreamKindAnnounce  byte = 1
	StreamKindSubscribe byte = 2
	StreamKindGroup     byte = 0
)

// GroupHeader is the fixed header at the start of a unidirectional group
// data stream, identifying which subscription the group belongs to and its
// position in the track's sequence.
type GroupHeader struct {
	SubscribeID   uint64
	GroupSequence uint64
}

// WriteGroupHeader writes the stream-kind byte followed by the group
// header fields.
func WriteGroupHeader(w io.Writer, h GroupHeader) error {
	buf := []byte{StreamKindGroup}
	buf = AppendVarInt(buf, h.SubscribeID)
	buf = AppendVarInt(buf, h.GroupSequence)
	_, err := w.Write(buf)
	return err
}

// ReadGroupHeader reads a GroupHeader from a stream whose leading
// stream-kind byte has already been consumed by the caller (the caller
// dispatches on that byte before knowing it's a group stream).
func ReadGroupHeader(r io.ByteReader) (GroupHeader, error) {
	subID, err := ReadVarInt(r)
	if err != nil {
		return GroupHeader{}, &ParseError{Field: "subscribe_id", Err: err}
	}
	seq, err := ReadVarInt(r)
	if err != nil {
		return GroupHeader{}, &ParseError{Field: "group_sequence", Err: err}
	}
	return GroupHeader{SubscribeID: subID, GroupSequence: seq}, nil
}

// WriteDeltaFrame writes one frame in the "delta" wire format used on group
// streams: a VarInt time delta (absolute milliseconds for the first frame
// of the group, milliseconds since the previous frame thereafter) followed
// by the length-prefixed payload.
func WriteDeltaFrame(w io.Writer, deltaMS uint64, payload []byte) error {
	buf := AppendVarInt(nil, deltaMS)
	buf = AppendVarInt(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadDeltaFrame reads one delta-framed frame: the VarInt delta and the
// length-prefixed payload bytes.
func ReadDeltaFrame(r io.Reader) (deltaMS uint64, payload []byte, err error) {
	br, ok := r.(interface {
		io.Reader
		io.ByteReader
	})
	if !ok {
		br = &byteReaderAdapter{r: r}
	}
	deltaMS, err = ReadVarInt(br)
	if err != nil {
		return 0, nil, err
	}
	payload, err = ReadLengthPrefixed(br)
	if err != nil {
		return 0, nil, err
	}
	return deltaMS, payload, nil
}

// WriteRawFrame writes one frame in a non-delta wire format: just the
// length-prefixed payload, with no timestamp (the consumer stamps arrival
// time itself).
func WriteRawFrame(w io.Writer, payload []byte) error {
	return WriteLengthPrefixed(w, payload)
}

// ReadRawFrame reads one length-prefixed payload with no timestamp prefix.
func ReadRawFrame(r io.Reader) ([]byte, error) {
	return ReadLengthPrefixed(r)
}
