package moq

import (
	"bufio"
	"fmt"
	"io"
)

// ReadLengthPrefixed reads a VarInt length followed by exactly that many
// payload bytes, per §4.1. A stream that ends before the claimed length is
// reached yields an error. The length is not capped against anything, so
// an over-long claim waits for, and consumes, the bytes that follow.
func ReadLengthPrefixed(r io.Reader) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	payloadReader := r
	if !ok {
		buffered := bufio.NewReader(r)
		br = buffered
		payloadReader = buffered
	}
	length, err := ReadVarInt(br)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(payloadReader, payload); err != nil {
			return nil, fmt.Errorf("read payload (%d bytes): %w", length, err)
		}
	}
	return payload, nil
}

// WriteLengthPrefixed writes payload to a scratch buffer with its VarInt
// length prefix, then issues a single Write call so the message is
// atomic from the stream's point of view even without external
// synchronization (mirrors the teacher's WriteControlMsg discipline).
func WriteLengthPrefixed(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > MaxVarInt {
		return ErrMessageTooLarge
	}
	buf := AppendVarInt(make([]byte, 0, len(payload)+8), uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// bufReader wraps a byte slice for sequential varint/byte reading of an
// already-bounded message payload.
type bufReader struct {
	data []byte
	pos  int
}

func newBufReader(data []byte) *bufReader {
	return &bufReader{data: data}
}

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n, err := DecodeVarInt(b.data[b.pos:])
	if err != nil {
		return 0, err
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	end := b.pos + int(length)
	if end > len(b.data) || end < b.pos {
		return nil, io.ErrUnexpectedEOF
	}
	val := b.data[b.pos:end]
	b.pos = end
	return val, nil
}

func (b *bufReader) remaining() []byte {
	return b.data[b.pos:]
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = AppendVarInt(buf, uint64(len(data)))
	buf = append(buf, data...)
	return buf
}
