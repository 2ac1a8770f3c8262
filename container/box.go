package container

import (
	"encoding/binary"
	"fmt"
)

// rawBox is one ISO-BMFF box: its four-character type and its body (the
// bytes after the header, up to the box's declared end).
type rawBox struct {
	Type string
	Body []byte
}

// parseBoxes walks the top-level boxes in data (ISO/IEC 14496-12 §4.2): a
// 32-bit big-endian size, a four-character type, an optional 64-bit
// largesize when size==1, and size==0 meaning "extends to the end of data".
func parseBoxes(data []byte) ([]rawBox, error) {
	var boxes []rawBox
	pos := 0
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("%w: header at offset %d", ErrTruncatedBox, pos)
		}
		size := uint64(binary.BigEndian.Uint32(data[pos : pos+4]))
		boxType := string(data[pos+4 : pos+8])
		headerLen := 8
		if size == 1 {
			if pos+16 > len(data) {
				return nil, fmt.Errorf("%w: largesize at offset %d", ErrTruncatedBox, pos)
			}
			size = binary.BigEndian.Uint64(data[pos+8 : pos+16])
			headerLen = 16
		} else if size == 0 {
			size = uint64(len(data) - pos)
		}
		end := pos + int(size)
		if size < uint64(headerLen) || end > len(data) {
			return nil, fmt.Errorf("%w: %s at offset %d overruns buffer", ErrTruncatedBox, boxType, pos)
		}
		boxes = append(boxes, rawBox{Type: boxType, Body: data[pos+headerLen : end]})
		pos = end
	}
	return boxes, nil
}

// findBox returns the body of the first top-level box of the given type.
func findBox(boxes []rawBox, boxType string) ([]byte, bool) {
	for _, b := range boxes {
		if b.Type == boxType {
			return b.Body, true
		}
	}
	return nil, false
}

// beUint32 reads a big-endian uint32 from the front of b.
func beUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// buildBox serializes a box with the given type and body, choosing the
// compact 32-bit size header (callers never build boxes anywhere near 4 GiB).
func buildBox(boxType string, body []byte) []byte {
	out := make([]byte, 0, 8+len(body))
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(8+len(body)))
	out = append(out, sizeBuf[:]...)
	out = append(out, []byte(boxType)...)
	out = append(out, body...)
	return out
}
