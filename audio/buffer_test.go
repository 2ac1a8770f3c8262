package audio

import "testing"

func mono(samples ...float32) [][]float32 { return [][]float32{samples} }

func TestBufferStalledUntilFirstWrite(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 0.1)
	if !b.Stalled() {
		t.Fatalf("new buffer should start stalled")
	}
	out := mono(make([]float32, 4)...)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("Read before any write = %d, want 0", n)
	}

	if _, err := b.Write(0, mono(1, 2, 3)); err != nil {
		t.Fatalf("Write: unexpected error: %v", err)
	}
	if b.Stalled() {
		t.Errorf("buffer still stalled after first successful write")
	}
}

func TestBufferWriteThenRead(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 1) // capacity 1000 samples at 1kHz
	if _, err := b.Write(0, mono(1, 2, 3, 4)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := mono(make([]float32, 4)...)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4 {
		t.Fatalf("Read n = %d, want 4", n)
	}
	want := []float32{1, 2, 3, 4}
	for i, w := range want {
		if out[0][i] != w {
			t.Errorf("out[0][%d] = %v, want %v", i, out[0][i], w)
		}
	}
}

func TestBufferGapIsZeroFilled(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 1)
	// first write: timestamp 0us -> index 0 at 1000Hz, two samples at [0,2)
	if _, err := b.Write(0, mono(1, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// next write starts 2ms later (index 4 at 1000Hz => 4ms = 4000us), leaving a
	// gap of 2 samples (indices 2,3) to be zero-filled.
	if _, err := b.Write(4000, mono(9, 9)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := mono(make([]float32, 6)...)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 6 {
		t.Fatalf("Read n = %d, want 6", n)
	}
	want := []float32{1, 2, 0, 0, 9, 9}
	for i, w := range want {
		if out[0][i] != w {
			t.Errorf("out[0][%d] = %v, want %v", i, out[0][i], w)
		}
	}
}

func TestBufferReadReturnsZeroWhenEmptyAfterDrain(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 1)
	if _, err := b.Write(0, mono(1, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := mono(make([]float32, 2)...)
	if n, _ := b.Read(out); n != 2 {
		t.Fatalf("first Read n = %d, want 2", n)
	}
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Fatalf("Read after drain n = %d, want 0", n)
	}
	if !b.Stalled() {
		t.Errorf("buffer should re-enter stalled state once drained empty")
	}
}

func TestBufferUnderflowReported(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 1)
	if _, err := b.Write(0, mono(1, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := mono(make([]float32, 5)...)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 {
		t.Fatalf("Read n = %d, want 2 (only 2 available)", n)
	}
	if !b.Underflowed() {
		t.Errorf("Underflowed() = false, want true (requested 5, got 2)")
	}
}

func TestBufferOverflowAdvancesReadIndex(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 0.002) // capacity 2 samples
	if _, err := b.Write(0, mono(1, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// overflow: write 2 more samples with no room; should discard the
	// unread output rather than block or error.
	if _, err := b.Write(2000, mono(3, 4)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := mono(make([]float32, 2)...)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 {
		t.Fatalf("Read n = %d, want 2", n)
	}
	if out[0][0] != 3 || out[0][1] != 4 {
		t.Errorf("out = %v, want [3 4] (stale samples discarded by overflow)", out[0])
	}
}

func TestBufferDiscardsSamplesPrecedingReadIndex(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 1)
	if _, err := b.Write(0, mono(1, 2, 3, 4)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := mono(make([]float32, 2)...)
	if n, _ := b.Read(out); n != 2 {
		t.Fatalf("Read n = %d, want 2", n)
	}
	// this write's start (index 0) is entirely behind the read index (2);
	// it must be fully discarded, not re-written.
	stored, err := b.Write(0, mono(100, 200))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if stored != 0 {
		t.Fatalf("Write stored = %d, want 0 (entirely stale)", stored)
	}
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 || out[0][0] != 3 || out[0][1] != 4 {
		t.Errorf("Read = (%d, %v), want (2, [3 4])", n, out[0])
	}
}

func TestBufferResizePreservesMostRecentSamples(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 1, 1)
	if _, err := b.Write(0, mono(1, 2, 3, 4, 5)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b.Resize(0.002) // shrink to 2 samples, keeping indices {3,4} = values {4,5}

	if !b.Stalled() {
		t.Errorf("Resize should re-enter stalled state")
	}
	out := mono(make([]float32, 2)...)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Fatalf("Read immediately after Resize = %d, want 0 (stalled)", n)
	}

	// A write continuing the same stream (timestamp index 5) clears the
	// stall; since capacity is now only 2, this overflows the preserved
	// tail of {4,5} down to the most recent 2 samples, {5,6}.
	if _, err := b.Write(5000, mono(6)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Stalled() {
		t.Errorf("buffer still stalled after write following resize")
	}
	n, err = b.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 || out[0][0] != 5 || out[0][1] != 6 {
		t.Fatalf("Read = (%d, %v), want (2, [5 6])", n, out[0])
	}
}

func TestBufferChannelMismatch(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 2, 1)
	if _, err := b.Write(0, mono(1, 2)); err != ErrChannelMismatch {
		t.Fatalf("Write error = %v, want ErrChannelMismatch", err)
	}
	if _, err := b.Read(mono(make([]float32, 2)...)); err != ErrChannelMismatch {
		t.Fatalf("Read error = %v, want ErrChannelMismatch", err)
	}
}

func TestBufferMultiChannel(t *testing.T) {
	t.Parallel()
	b := NewBuffer(1000, 2, 1)
	left := []float32{1, 2, 3}
	right := []float32{10, 20, 30}
	if _, err := b.Write(0, [][]float32{left, right}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	outL := make([]float32, 3)
	outR := make([]float32, 3)
	n, err := b.Read([][]float32{outL, outR})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 {
		t.Fatalf("Read n = %d, want 3", n)
	}
	for i := range left {
		if outL[i] != left[i] || outR[i] != right[i] {
			t.Errorf("frame %d = (%v, %v), want (%v, %v)", i, outL[i], outR[i], left[i], right[i])
		}
	}
}
