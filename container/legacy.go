package container

import (
	"fmt"

	"github.com/go-hang/hang/moq"
)

// EncodeLegacyFrame writes a legacy-container frame: a VarInt timestamp in
// microseconds followed by the raw payload. Kept alongside the decoder for
// test-harness symmetry even though the publisher side is out of scope.
func EncodeLegacyFrame(timestampMicros uint64, payload []byte) []byte {
	buf := moq.AppendVarInt(make([]byte, 0, len(payload)+8), timestampMicros)
	return append(buf, payload...)
}

// DecodeLegacyFrame pops the VarInt timestamp prefix off data, returning
// the timestamp in microseconds and the remaining payload.
func DecodeLegacyFrame(data []byte) (timestampMicros uint64, payload []byte, err error) {
	ts, n, err := moq.DecodeVarInt(data)
	if err != nil {
		return 0, nil, fmt.Errorf("container: decode legacy timestamp: %w", err)
	}
	return ts, data[n:], nil
}
