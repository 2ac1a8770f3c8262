package subscribe

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-hang/hang/moq"
	"github.com/go-hang/hang/track"
)

func TestNextSubscribeIDMonotonic(t *testing.T) {
	t.Parallel()
	s := New(nil)
	if id := s.NextSubscribeID(); id != 0 {
		t.Fatalf("first id = %d, want 0", id)
	}
	if id := s.NextSubscribeID(); id != 1 {
		t.Fatalf("second id = %d, want 1", id)
	}
}

func TestRegisterLookupRemove(t *testing.T) {
	t.Parallel()
	s := New(nil)
	id := s.NextSubscribeID()
	tr := track.NewTrack("video", nil)

	if err := s.Register(id, tr); err != nil {
		t.Fatalf("Register: unexpected error: %v", err)
	}
	if err := s.Register(id, tr); err != ErrAlreadyRegistered {
		t.Fatalf("duplicate Register error = %v, want ErrAlreadyRegistered", err)
	}
	got, ok := s.Lookup(id)
	if !ok || got != tr {
		t.Fatalf("Lookup = %v, %v, want %v, true", got, ok, tr)
	}

	s.Remove(id, nil)
	if _, ok := s.Lookup(id); ok {
		t.Error("Lookup found track after Remove")
	}
	if !tr.Closed() {
		t.Error("Remove did not close the track")
	}
}

func TestIngestGroupStreamUnknownSubscriptionIsHardError(t *testing.T) {
	t.Parallel()
	s := New(nil)
	header := moq.GroupHeader{SubscribeID: 5, GroupSequence: 0}
	if err := s.IngestGroupStream(header, bytes.NewReader(nil)); err != ErrUnknownSubscription {
		t.Fatalf("error = %v, want ErrUnknownSubscription", err)
	}
}

func TestIngestGroupStreamReconstructsTimestamps(t *testing.T) {
	t.Parallel()
	s := New(nil)
	id := s.NextSubscribeID()
	tr := track.NewTrack("video", nil)
	if err := s.Register(id, tr); err != nil {
		t.Fatalf("Register: unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := moq.WriteDeltaFrame(&buf, 1000, []byte("key")); err != nil {
		t.Fatalf("WriteDeltaFrame: %v", err)
	}
	if err := moq.WriteDeltaFrame(&buf, 33, []byte("delta1")); err != nil {
		t.Fatalf("WriteDeltaFrame: %v", err)
	}
	if err := moq.WriteDeltaFrame(&buf, 33, []byte("delta2")); err != nil {
		t.Fatalf("WriteDeltaFrame: %v", err)
	}

	header := moq.GroupHeader{SubscribeID: id, GroupSequence: 0}
	if err := s.IngestGroupStream(header, &buf); err != nil {
		t.Fatalf("IngestGroupStream: unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	g, err := tr.NextGroup(ctx)
	if err != nil {
		t.Fatalf("NextGroup: unexpected error: %v", err)
	}

	wantTimestamps := []int64{1000000, 1033000, 1066000}
	wantKeyframe := []bool{true, false, false}
	wantPayload := []string{"key", "delta1", "delta2"}
	for i := range wantTimestamps {
		f, err := g.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("ReadFrame %d: unexpected error: %v", i, err)
		}
		if f.Timestamp != wantTimestamps[i] {
			t.Errorf("frame %d timestamp = %d, want %d", i, f.Timestamp, wantTimestamps[i])
		}
		if f.Keyframe != wantKeyframe[i] {
			t.Errorf("frame %d keyframe = %v, want %v", i, f.Keyframe, wantKeyframe[i])
		}
		if string(f.Data) != wantPayload[i] {
			t.Errorf("frame %d payload = %q, want %q", i, f.Data, wantPayload[i])
		}
	}

	if _, err := g.ReadFrame(ctx); err != track.ErrClosed {
		t.Errorf("trailing ReadFrame error = %v, want ErrClosed", err)
	}
}

func TestAllocateUnboundedWithoutMaxRequestID(t *testing.T) {
	t.Parallel()
	s := New(nil)
	for want := uint64(0); want < 3; want++ {
		got, err := s.Allocate()
		if err != nil {
			t.Fatalf("Allocate: unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("Allocate() = %d, want %d", got, want)
		}
	}
}

func TestAllocateRespectsMaxRequestIDCeiling(t *testing.T) {
	t.Parallel()
	s := New(nil)
	s.SetMaxRequestID(2)

	if id, err := s.Allocate(); err != nil || id != 0 {
		t.Fatalf("Allocate() = %d, %v, want 0, nil", id, err)
	}
	if id, err := s.Allocate(); err != nil || id != 1 {
		t.Fatalf("Allocate() = %d, %v, want 1, nil", id, err)
	}
	if _, err := s.Allocate(); err != ErrRequestIDExhausted {
		t.Fatalf("Allocate() error = %v, want ErrRequestIDExhausted", err)
	}
}

func TestAllocateUnblocksAfterCeilingRaised(t *testing.T) {
	t.Parallel()
	s := New(nil)
	s.SetMaxRequestID(1)
	if _, err := s.Allocate(); err != nil {
		t.Fatalf("Allocate: unexpected error: %v", err)
	}
	if _, err := s.Allocate(); err != ErrRequestIDExhausted {
		t.Fatalf("Allocate() error = %v, want ErrRequestIDExhausted", err)
	}

	s.SetMaxRequestID(3)
	if id, err := s.Allocate(); err != nil || id != 1 {
		t.Fatalf("Allocate() after raised ceiling = %d, %v, want 1, nil", id, err)
	}
}

func TestSetMaxRequestIDNeverLowersCeiling(t *testing.T) {
	t.Parallel()
	s := New(nil)
	s.SetMaxRequestID(5)
	s.SetMaxRequestID(2)
	for i := 0; i < 5; i++ {
		if _, err := s.Allocate(); err != nil {
			t.Fatalf("Allocate %d: unexpected error: %v", i, err)
		}
	}
	if _, err := s.Allocate(); err != ErrRequestIDExhausted {
		t.Fatalf("Allocate() error = %v, want ErrRequestIDExhausted", err)
	}
}

func TestIngestGroupStreamDropsWhenTrackRemoved(t *testing.T) {
	t.Parallel()
	s := New(nil)
	id := s.NextSubscribeID()

	var buf bytes.Buffer
	_ = moq.WriteDeltaFrame(&buf, 0, []byte("orphaned"))

	header := moq.GroupHeader{SubscribeID: id, GroupSequence: 0}
	if err := s.IngestGroupStream(header, &buf); err != nil {
		t.Fatalf("IngestGroupStream: unexpected error: %v", err)
	}
}
