package container

import (
	"bytes"
	"testing"
)

func TestLegacyFrameRoundTrip(t *testing.T) {
	t.Parallel()
	payload := []byte("hello frame")
	encoded := EncodeLegacyFrame(123456, payload)

	ts, rest, err := DecodeLegacyFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeLegacyFrame: unexpected error: %v", err)
	}
	if ts != 123456 {
		t.Errorf("timestamp = %d, want 123456", ts)
	}
	if !bytes.Equal(rest, payload) {
		t.Errorf("payload = %q, want %q", rest, payload)
	}
}

func TestLegacyFrameZeroTimestamp(t *testing.T) {
	t.Parallel()
	encoded := EncodeLegacyFrame(0, []byte("x"))
	ts, rest, err := DecodeLegacyFrame(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 0 {
		t.Errorf("timestamp = %d, want 0", ts)
	}
	if string(rest) != "x" {
		t.Errorf("payload = %q, want %q", rest, "x")
	}
}
