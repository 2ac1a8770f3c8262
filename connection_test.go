package hang

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-hang/hang/moq"
	"github.com/go-hang/hang/path"
	"github.com/go-hang/hang/publish"
	"github.com/go-hang/hang/session"
)

type rwc struct {
	io.Reader
	io.Writer
}

func (rwc) Close() error { return nil }

// fakeConn stands in for a real webtransport session in tests,
// following the same pipe-based approach as session/supervisor_test.go's
// fakeConn, extended with a queue of inbound unidirectional streams for
// AcceptUniStream.
type fakeConn struct {
	control io.ReadWriteCloser

	mu       sync.Mutex
	incoming []io.ReadCloser
	accept   chan struct{}
}

func newFakeConn() (*fakeConn, *pipeEnds) {
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()
	fc := &fakeConn{
		control: rwc{Reader: clientRead, Writer: clientWrite},
		accept:  make(chan struct{}, 64),
	}
	return fc, &pipeEnds{serverRead: serverRead, serverWrite: serverWrite}
}

type pipeEnds struct {
	serverRead  *io.PipeReader
	serverWrite *io.PipeWriter
}

func (p *pipeEnds) respondWithVersion(v uint64) {
	go func() {
		_, _, err := moq.ReadControlMsg(p.serverRead)
		if err != nil {
			return
		}
		reply := moq.SessionSetupReply{SelectedVersion: v, MaxRequestID: 100}
		_ = moq.WriteControlMsg(p.serverWrite, moq.MsgSessionServer, moq.SerializeSessionSetupReply(reply))
	}()
}

func (f *fakeConn) ControlStream() io.ReadWriteCloser { return f.control }

func (f *fakeConn) OpenUniStream(ctx context.Context) (io.WriteCloser, error) {
	return nil, errors.New("not implemented in fake")
}

func (f *fakeConn) AcceptUniStream(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-f.accept:
		f.mu.Lock()
		s := f.incoming[0]
		f.incoming = f.incoming[1:]
		f.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) CloseWithError(code uint64, reason string) error { return nil }

func (f *fakeConn) pushGroupStream(header moq.GroupHeader, frames [][]byte) {
	var buf bytes.Buffer
	_ = moq.WriteGroupHeader(&buf, header)
	for i, payload := range frames {
		delta := uint64(0)
		if i > 0 {
			delta = 10
		}
		_ = moq.WriteDeltaFrame(&buf, delta, payload)
	}
	f.mu.Lock()
	f.incoming = append(f.incoming, io.NopCloser(&buf))
	f.mu.Unlock()
	f.accept <- struct{}{}
}

func TestConnectionSubscribeReceivesOK(t *testing.T) {
	t.Parallel()
	conn, server := newFakeConn()
	server.respondWithVersion(moq.VersionIETFMax)

	dialer := dialerFunc(func(ctx context.Context, url string) (session.Conn, error) {
		return conn, nil
	})

	go func() {
		msgType, payload, err := moq.ReadControlMsg(server.serverRead)
		if err != nil || msgType != moq.MsgSubscribe {
			return
		}
		sub, err := moq.ParseSubscribe(payload)
		if err != nil {
			return
		}
		ok := moq.SubscribeOK{ID: sub.ID, Priority: sub.Priority}
		_ = moq.WriteControlMsg(server.serverWrite, moq.MsgSubscribeOK, moq.SerializeSubscribeOK(ok))
	}()

	c := NewConnection(dialer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "https://example.com/moq") }()

	waitForLiveConn(t, c)

	bp, err := path.New("live/room1")
	if err != nil {
		t.Fatalf("path.New: %v", err)
	}
	subCtx, subCancel := context.WithTimeout(context.Background(), time.Second)
	defer subCancel()
	tr, err := c.Subscribe(subCtx, bp, "catalog.json", 0, 0)
	if err != nil {
		t.Fatalf("Subscribe: unexpected error: %v", err)
	}
	if tr.Name != "catalog.json" {
		t.Errorf("track name = %q, want catalog.json", tr.Name)
	}

	cancel()
	<-done
}

func TestConnectionSubscribeReceivesError(t *testing.T) {
	t.Parallel()
	conn, server := newFakeConn()
	server.respondWithVersion(moq.VersionIETFMax)

	dialer := dialerFunc(func(ctx context.Context, url string) (session.Conn, error) {
		return conn, nil
	})

	go func() {
		msgType, payload, err := moq.ReadControlMsg(server.serverRead)
		if err != nil || msgType != moq.MsgSubscribe {
			return
		}
		sub, err := moq.ParseSubscribe(payload)
		if err != nil {
			return
		}
		se := moq.SubscribeError{ID: sub.ID, ErrorCode: 404, ReasonPhrase: "not found"}
		_ = moq.WriteControlMsg(server.serverWrite, moq.MsgSubscribeError, moq.SerializeSubscribeError(se))
	}()

	c := NewConnection(dialer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "https://example.com/moq") }()

	waitForLiveConn(t, c)

	bp, _ := path.New("live/room1")
	subCtx, subCancel := context.WithTimeout(context.Background(), time.Second)
	defer subCancel()
	if _, err := c.Subscribe(subCtx, bp, "catalog.json", 0, 0); !errors.Is(err, ErrProtocol) {
		t.Fatalf("Subscribe error = %v, want ErrProtocol", err)
	}

	cancel()
	<-done
}

func TestConnectionIngestsGroupStream(t *testing.T) {
	t.Parallel()
	conn, server := newFakeConn()
	server.respondWithVersion(moq.VersionIETFMax)

	var subID uint64
	gotSubID := make(chan struct{})
	go func() {
		msgType, payload, err := moq.ReadControlMsg(server.serverRead)
		if err != nil || msgType != moq.MsgSubscribe {
			return
		}
		sub, err := moq.ParseSubscribe(payload)
		if err != nil {
			return
		}
		subID = sub.ID
		close(gotSubID)
		ok := moq.SubscribeOK{ID: sub.ID}
		_ = moq.WriteControlMsg(server.serverWrite, moq.MsgSubscribeOK, moq.SerializeSubscribeOK(ok))
	}()

	dialer := dialerFunc(func(ctx context.Context, url string) (session.Conn, error) {
		return conn, nil
	})
	c := NewConnection(dialer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "https://example.com/moq") }()

	waitForLiveConn(t, c)

	bp, _ := path.New("live/room1")
	subCtx, subCancel := context.WithTimeout(context.Background(), time.Second)
	defer subCancel()
	tr, err := c.Subscribe(subCtx, bp, "video", 0, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-gotSubID:
	case <-time.After(time.Second):
		t.Fatal("never observed subscribe id")
	}

	conn.pushGroupStream(moq.GroupHeader{SubscribeID: subID, GroupSequence: 0}, [][]byte{[]byte("keyframe")})

	groupCtx, groupCancel := context.WithTimeout(context.Background(), time.Second)
	defer groupCancel()
	g, err := tr.NextGroup(groupCtx)
	if err != nil {
		t.Fatalf("NextGroup: %v", err)
	}
	frameCtx, frameCancel := context.WithTimeout(context.Background(), time.Second)
	defer frameCancel()
	f, err := g.ReadFrame(frameCtx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(f.Data) != "keyframe" {
		t.Errorf("frame data = %q, want keyframe", f.Data)
	}

	cancel()
	<-done
}

func TestConnectionWatchBroadcastsDeliversInitAndIncrementalEvents(t *testing.T) {
	t.Parallel()
	conn, server := newFakeConn()
	server.respondWithVersion(moq.VersionIETFMax)

	gotInterest := make(chan moq.AnnounceInterest, 1)
	go func() {
		msgType, payload, err := moq.ReadControlMsg(server.serverRead)
		if err != nil || msgType != moq.MsgAnnounceInterest {
			return
		}
		ai, err := moq.ParseAnnounceInterest(payload)
		if err != nil {
			return
		}
		gotInterest <- ai

		init := moq.AnnounceInit{ActivePaths: [][]string{{"live", "room1"}, {"live", "room2"}}}
		if err := moq.WriteControlMsg(server.serverWrite, moq.MsgAnnounceInit, moq.SerializeAnnounceInit(init)); err != nil {
			return
		}

		a := moq.Announce{Suffix: []string{"room3"}, Active: true}
		if err := moq.WriteControlMsg(server.serverWrite, moq.MsgAnnounce, moq.SerializeAnnounce(a)); err != nil {
			return
		}

		u := moq.Announce{Suffix: []string{"room1"}, Active: false}
		_ = moq.WriteControlMsg(server.serverWrite, moq.MsgUnannounce, moq.SerializeAnnounce(u))
	}()

	dialer := dialerFunc(func(ctx context.Context, url string) (session.Conn, error) {
		return conn, nil
	})
	c := NewConnection(dialer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "https://example.com/moq") }()
	waitForLiveConn(t, c)

	prefix, _ := path.New("live")
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	events, stopWatch, err := c.WatchBroadcasts(watchCtx, prefix)
	if err != nil {
		t.Fatalf("WatchBroadcasts: unexpected error: %v", err)
	}
	defer stopWatch()

	select {
	case ai := <-gotInterest:
		if len(ai.Prefix) != 1 || ai.Prefix[0] != "live" {
			t.Errorf("ANNOUNCE_INTEREST prefix = %v, want [live]", ai.Prefix)
		}
	case <-time.After(time.Second):
		t.Fatal("ANNOUNCE_INTEREST was never sent")
	}

	const wantEvents = 4 // 2 from ANNOUNCE_INIT, 1 ANNOUNCE, 1 UNANNOUNCE
	seen := make([]publish.AnnounceEvent, 0, wantEvents)
	deadline := time.After(2 * time.Second)
	for len(seen) < wantEvents {
		select {
		case ev := <-events:
			seen = append(seen, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d of %d: %v", len(seen), wantEvents, seen)
		}
	}

	last := make(map[string]bool)
	for _, ev := range seen {
		last[ev.Path.String()] = ev.Active
	}
	wantFinal := map[string]bool{
		"live/room1": false, // announced by init, then withdrawn
		"live/room2": true,
		"live/room3": true,
	}
	for path, active := range wantFinal {
		if last[path] != active {
			t.Errorf("final state[%q] active = %v, want %v", path, last[path], active)
		}
	}

	stopWatch()
	cancel()
	<-done
}

type dialerFunc func(ctx context.Context, url string) (session.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, url string) (session.Conn, error) {
	return f(ctx, url)
}

func waitForLiveConn(t *testing.T, c *Connection) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for c.State() != session.StateConnected {
		select {
		case <-deadline:
			t.Fatal("connection never reached StateConnected")
		case <-time.After(time.Millisecond):
		}
	}
}
