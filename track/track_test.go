package track

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTrackNextGroupOrder(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		if err := tr.InsertGroup(NewGroup(seq)); err != nil {
			t.Fatalf("InsertGroup(%d): unexpected error: %v", seq, err)
		}
	}

	for seq := uint64(1); seq <= 3; seq++ {
		g, err := tr.NextGroup(ctx)
		if err != nil {
			t.Fatalf("NextGroup: unexpected error: %v", err)
		}
		if g.Sequence != seq {
			t.Errorf("NextGroup sequence = %d, want %d", g.Sequence, seq)
		}
	}
}

func TestTrackNextGroupBlocksUntilInsert(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	ctx := context.Background()

	done := make(chan *Group, 1)
	go func() {
		g, err := tr.NextGroup(ctx)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		done <- g
	}()

	select {
	case <-done:
		t.Fatal("NextGroup returned before any group was inserted")
	case <-time.After(20 * time.Millisecond):
	}

	if err := tr.InsertGroup(NewGroup(1)); err != nil {
		t.Fatalf("InsertGroup: unexpected error: %v", err)
	}

	select {
	case g := <-done:
		if g.Sequence != 1 {
			t.Errorf("got sequence %d, want 1", g.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("NextGroup never woke after InsertGroup")
	}
}

func TestTrackLateGroupDropped(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	ctx := context.Background()

	if err := tr.InsertGroup(NewGroup(5)); err != nil {
		t.Fatalf("InsertGroup(5): unexpected error: %v", err)
	}
	late := NewGroup(5)
	if err := tr.InsertGroup(late); !errors.Is(err, ErrLateGroup) {
		t.Fatalf("InsertGroup(5) again: error = %v, want ErrLateGroup", err)
	}
	if !late.Closed() {
		t.Error("late group should be closed")
	}

	g, err := tr.NextGroup(ctx)
	if err != nil {
		t.Fatalf("NextGroup: unexpected error: %v", err)
	}
	if g.Sequence != 5 {
		t.Errorf("got sequence %d, want 5", g.Sequence)
	}

	older := NewGroup(3)
	if err := tr.InsertGroup(older); !errors.Is(err, ErrLateGroup) {
		t.Fatalf("InsertGroup(3): error = %v, want ErrLateGroup", err)
	}
}

func TestTrackCloseClosesGroups(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	g1 := NewGroup(1)
	g2 := NewGroup(2)
	if err := tr.InsertGroup(g1); err != nil {
		t.Fatalf("InsertGroup(1): %v", err)
	}
	if err := tr.InsertGroup(g2); err != nil {
		t.Fatalf("InsertGroup(2): %v", err)
	}

	cause := errors.New("transport reset")
	tr.Close(cause)

	if !g1.Closed() || !g2.Closed() {
		t.Error("Close did not close all groups")
	}

	ctx := context.Background()
	// drain the two already-inserted groups first
	if _, err := tr.NextGroup(ctx); err != nil {
		t.Fatalf("NextGroup: %v", err)
	}
	if _, err := tr.NextGroup(ctx); err != nil {
		t.Fatalf("NextGroup: %v", err)
	}
	if _, err := tr.NextGroup(ctx); !errors.Is(err, cause) {
		t.Errorf("NextGroup after close = %v, want %v", err, cause)
	}
}

func TestTrackInsertAfterCloseRejected(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	tr.Close(nil)

	g := NewGroup(1)
	if err := tr.InsertGroup(g); !errors.Is(err, ErrClosed) {
		t.Fatalf("InsertGroup after close: error = %v, want ErrClosed", err)
	}
	if !g.Closed() {
		t.Error("rejected group should be closed")
	}
}

func TestTrackNextGroupCancelled(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.NextGroup(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("NextGroup with cancelled ctx: error = %v, want context.Canceled", err)
	}
}

func TestTrackControlValues(t *testing.T) {
	t.Parallel()
	tr := NewTrack("video", nil)
	tr.SetPriority(42)
	tr.SetMaxLatencyMS(250)
	tr.SetOrdered(true)

	if got := tr.Priority(); got != 42 {
		t.Errorf("Priority() = %d, want 42", got)
	}
	if got := tr.MaxLatencyMS(); got != 250 {
		t.Errorf("MaxLatencyMS() = %d, want 250", got)
	}
	if got := tr.Ordered(); !got {
		t.Error("Ordered() = false, want true")
	}
}
