package hang

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-hang/hang/moq"
	"github.com/go-hang/hang/path"
	"github.com/go-hang/hang/publish"
	"github.com/go-hang/hang/session"
	"github.com/go-hang/hang/subscribe"
	"github.com/go-hang/hang/track"
)

// subscribeResult is delivered to a pending Subscribe call once the
// peer's SubscribeOK or SubscribeError control message arrives.
type subscribeResult struct {
	ok  moq.SubscribeOK
	err error
}

// announceWatcher is one outstanding WatchBroadcasts call: events are
// pushed to ch as they occur, up to a small buffer, and dropped with a
// warning if the caller falls behind. Grounded on publish.Publisher's
// watcher type, inverted to the consumer side of a session.
type announceWatcher struct {
	prefix path.Path
	ch     chan publish.AnnounceEvent
}

// Connection owns one session.Supervisor and the subscribe-id space for
// everything subscribed over it: it sends Subscribe/Unsubscribe control
// messages, demultiplexes inbound unidirectional group streams to the
// subscribe package, and dispatches SubscribeOK/SubscribeError/GoAway/
// MaxRequestID replies on the control stream.
//
// Grounded on subscribe.Subscriber's doc comment, which places
// "issues AnnounceInterest/Subscribe, demultiplexes inbound group
// streams" at this facade layer rather than in Subscriber itself
// (Subscriber only does Register/Lookup/IngestGroupStream); the
// errgroup-fans-out-two-loops-per-connection shape is grounded on
// cmd/prism/main.go's errgroup-orchestrated component startup.
type Connection struct {
	log        *slog.Logger
	supervisor *session.Supervisor
	subscriber *subscribe.Subscriber

	mu                sync.Mutex
	conn              session.Conn
	pending           map[uint64]chan subscribeResult
	announceWatchers  map[int]*announceWatcher
	nextAnnounceWatch int
}

// NewConnection constructs a Connection that dials via d. If log is nil,
// slog.Default() is used.
func NewConnection(d session.Dialer, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "connection")
	c := &Connection{
		log:              log,
		subscriber:       subscribe.New(log),
		pending:          make(map[uint64]chan subscribeResult),
		announceWatchers: make(map[int]*announceWatcher),
	}
	sup := session.New(d, c.handle, log)
	sup.AutoReconnect = true
	c.supervisor = sup
	return c
}

// State returns the underlying supervisor's lifecycle state.
func (c *Connection) State() session.State {
	return c.supervisor.State()
}

// SessionID returns the current connection's identifier for log
// correlation and diagnostics, minted fresh on every successful
// connect. It is empty until the first connection succeeds.
func (c *Connection) SessionID() string {
	return c.supervisor.SessionID()
}

// SetAutoReconnect toggles backoff-and-retry on transport/protocol
// failure and GOAWAY, per spec.md §6's reconnect option. It must be
// called before Run.
func (c *Connection) SetAutoReconnect(enabled bool) {
	c.supervisor.AutoReconnect = enabled
}

// OnDisconnect forwards to the underlying supervisor, which calls f each
// time a connection's handler returns: cause is session.ErrReset when the
// peer closed the control stream cleanly, an error satisfying
// errors.Is(cause, session.ErrGoAway) for a graceful migration, and
// otherwise the handler's own error (wrapping ErrTransport for a transport
// failure). A failed connect attempt does not call it.
func (c *Connection) OnDisconnect(f func(cause error)) {
	c.supervisor.OnDisconnect = f
}

// Run dials url and serves it until ctx is done or a non-retryable
// failure occurs, reconnecting with backoff in between per spec.md §4.4.
// Tracks obtained through Subscribe are not closed when a connection ends:
// they stay registered and receive no further groups until Unsubscribe
// closes them. Subscribe calls still waiting for SubscribeOK fail. Callers
// must re-Subscribe after reconnecting.
func (c *Connection) Run(ctx context.Context, url string) error {
	return c.supervisor.Run(ctx, url)
}

// Subscribe issues a Subscribe control message for broadcast/trackName
// and returns the Track that will receive its groups once the peer
// confirms with SubscribeOK. It fails with ErrTransport if no connection
// is currently live, with ErrProtocol if the peer rejects the
// subscription, wrapping subscribe.ErrRequestIDExhausted through
// ErrProtocol if the local MAX_REQUEST_ID ceiling has been reached.
func (c *Connection) Subscribe(ctx context.Context, broadcast path.Path, trackName string, priority byte, maxLatencyMS uint64) (*track.Track, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%w: no live connection", ErrTransport)
	}

	id, err := c.subscriber.Allocate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	t := track.NewTrack(trackName, c.log)
	if err := c.subscriber.Register(id, t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	result := make(chan subscribeResult, 1)
	c.mu.Lock()
	c.pending[id] = result
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := moq.Subscribe{
		ID:            id,
		Broadcast:     broadcast.Segments(),
		Track:         trackName,
		Priority:      priority,
		MaxLatencyMS:  maxLatencyMS,
		HasMaxLatency: maxLatencyMS > 0,
		FilterType:    moq.FilterLatestObject,
	}
	if err := moq.WriteControlMsg(conn.ControlStream(), moq.MsgSubscribe, moq.SerializeSubscribe(msg)); err != nil {
		c.subscriber.Remove(id, nil)
		return nil, fmt.Errorf("%w: write SUBSCRIBE: %w", ErrTransport, err)
	}

	select {
	case r := <-result:
		if r.err != nil {
			c.subscriber.Remove(id, nil)
			return nil, fmt.Errorf("%w: %w", ErrProtocol, r.err)
		}
		t.SetPriority(r.ok.Priority)
		if r.ok.HasMaxLatency {
			t.SetMaxLatencyMS(r.ok.MaxLatencyMS)
		}
		if r.ok.HasOrdered {
			t.SetOrdered(r.ok.Ordered)
		}
		return t, nil
	case <-ctx.Done():
		c.subscriber.Remove(id, nil)
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// WatchBroadcasts sends ANNOUNCE_INTEREST for prefix and streams every
// resulting ANNOUNCE_INIT/ANNOUNCE/UNANNOUNCE as a publish.AnnounceEvent
// on the returned channel, per spec.md §4.3's "Subscriber sends
// AnnounceInterest to discover broadcasts". The initial ANNOUNCE_INIT
// arrives as one Active:true event per currently active path rather than
// a synchronous snapshot, since unlike publish.Publisher's local
// WatchAnnouncements the reply only arrives once the peer answers over
// the wire. Delivery stops when ctx is done or the returned cancel func is
// called; the channel itself is never closed.
//
// The wire carries no request ID correlating an ANNOUNCE_INTEREST to the
// ANNOUNCE_INIT/ANNOUNCE/UNANNOUNCE messages it later elicits. This
// client resolves that ambiguity by matching ANNOUNCE_INIT's absolute
// ActivePaths against each live watcher's prefix (as publish.Publisher's
// fanOut does server-side), and by treating every inbound ANNOUNCE's
// Suffix as relative to each live watcher's own prefix, joining and
// delivering it to every watcher currently registered.
func (c *Connection) WatchBroadcasts(ctx context.Context, prefix path.Path) (events <-chan publish.AnnounceEvent, cancel func(), err error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, nil, fmt.Errorf("%w: no live connection", ErrTransport)
	}

	w := &announceWatcher{prefix: prefix, ch: make(chan publish.AnnounceEvent, 32)}
	c.mu.Lock()
	id := c.nextAnnounceWatch
	c.nextAnnounceWatch++
	c.announceWatchers[id] = w
	c.mu.Unlock()

	cancelOnce := sync.OnceFunc(func() {
		c.mu.Lock()
		delete(c.announceWatchers, id)
		c.mu.Unlock()
	})

	msg := moq.AnnounceInterest{Prefix: prefix.Segments()}
	if err := moq.WriteControlMsg(conn.ControlStream(), moq.MsgAnnounceInterest, moq.SerializeAnnounceInterest(msg)); err != nil {
		cancelOnce()
		return nil, nil, fmt.Errorf("%w: write ANNOUNCE_INTEREST: %w", ErrTransport, err)
	}

	go func() {
		<-ctx.Done()
		cancelOnce()
	}()

	return w.ch, cancelOnce, nil
}

// Unsubscribe sends an Unsubscribe control message and removes the local
// registration, closing its Track with session.ErrReset.
func (c *Connection) Unsubscribe(id uint64) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	c.subscriber.Remove(id, session.ErrReset)
	if conn == nil {
		return fmt.Errorf("%w: no live connection", ErrTransport)
	}
	if err := moq.WriteControlMsg(conn.ControlStream(), moq.MsgUnsubscribe, moq.SerializeUnsubscribe(moq.Unsubscribe{ID: id})); err != nil {
		return fmt.Errorf("%w: write UNSUBSCRIBE: %w", ErrTransport, err)
	}
	return nil
}

func (c *Connection) setConn(conn session.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// handle is the session.Handler run over every successful connection: it
// fans out the control-message read loop and the inbound group-stream
// accept loop, returning whichever fails first (or the GoAway cause).
func (c *Connection) handle(ctx context.Context, conn session.Conn, version uint64) error {
	c.setConn(conn)
	defer c.setConn(nil)
	defer c.failPending(errors.New("connection ended"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.controlLoop(ctx, conn) })
	g.Go(func() error { return c.acceptGroupsLoop(ctx, conn) })
	return g.Wait()
}

func (c *Connection) failPending(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan subscribeResult)
	c.mu.Unlock()
	for _, ch := range pending {
		select {
		case ch <- subscribeResult{err: cause}:
		default:
		}
	}
}

// controlLoop reads SubscribeOK/SubscribeError/MaxRequestID/GoAway
// messages off the control stream until it errors or a GoAway message
// arrives, in which case it returns a *session.GoAwayError so the
// Supervisor redials per spec.md §4's GOAWAY supplement.
func (c *Connection) controlLoop(ctx context.Context, conn session.Conn) error {
	control := conn.ControlStream()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgType, payload, err := moq.ReadControlMsg(control)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: read control message: %w", ErrTransport, err)
		}
		switch msgType {
		case moq.MsgSubscribeOK:
			ok, err := moq.ParseSubscribeOK(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.deliverPending(ok.ID, subscribeResult{ok: ok})
		case moq.MsgSubscribeError:
			se, err := moq.ParseSubscribeError(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.deliverPending(se.ID, subscribeResult{err: fmt.Errorf("subscribe error %d: %s", se.ErrorCode, se.ReasonPhrase)})
		case moq.MsgMaxRequestID:
			m, err := moq.ParseMaxRequestID(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.subscriber.SetMaxRequestID(m.ID)
		case moq.MsgAnnounceInit:
			init, err := moq.ParseAnnounceInit(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.deliverAnnounceInit(init)
		case moq.MsgAnnounce:
			a, err := moq.ParseAnnounce(payload, true)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.deliverAnnounce(a)
		case moq.MsgUnannounce:
			a, err := moq.ParseAnnounce(payload, false)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.deliverAnnounce(a)
		case moq.MsgGoAway:
			ga, err := moq.ParseGoAway(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			c.log.Info("received GOAWAY", "new_session_uri", ga.NewSessionURI)
			return &session.GoAwayError{NewSessionURI: ga.NewSessionURI}
		default:
			c.log.Debug("ignoring unexpected control message", "type", msgType)
		}
	}
}

func (c *Connection) deliverPending(id uint64, r subscribeResult) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r:
	default:
	}
}

// deliverAnnounceInit fans an ANNOUNCE_INIT's absolute active paths out to
// every watcher whose prefix matches, one Active:true event per path.
func (c *Connection) deliverAnnounceInit(init moq.AnnounceInit) {
	c.mu.Lock()
	watchers := make([]*announceWatcher, 0, len(c.announceWatchers))
	for _, w := range c.announceWatchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	for _, seg := range init.ActivePaths {
		p, err := path.FromSegments(seg)
		if err != nil {
			c.log.Warn("malformed ANNOUNCE_INIT path", "error", err)
			continue
		}
		for _, w := range watchers {
			if !w.prefix.Empty() {
				if _, ok := p.StripPrefix(w.prefix); !ok {
					continue
				}
			}
			c.deliverAnnounceEvent(w, publish.AnnounceEvent{Path: p, Active: true})
		}
	}
}

// deliverAnnounce fans an ANNOUNCE/UNANNOUNCE's suffix out to every live
// watcher, joined against that watcher's own prefix (see WatchBroadcasts's
// doc comment for why every watcher, not just one, is a candidate).
func (c *Connection) deliverAnnounce(a moq.Announce) {
	suffix, err := path.FromSegments(a.Suffix)
	if err != nil {
		c.log.Warn("malformed ANNOUNCE suffix", "error", err)
		return
	}

	c.mu.Lock()
	watchers := make([]*announceWatcher, 0, len(c.announceWatchers))
	for _, w := range c.announceWatchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	for _, w := range watchers {
		c.deliverAnnounceEvent(w, publish.AnnounceEvent{Path: w.prefix.Join(suffix), Active: a.Active})
	}
}

func (c *Connection) deliverAnnounceEvent(w *announceWatcher, ev publish.AnnounceEvent) {
	select {
	case w.ch <- ev:
	default:
		c.log.Warn("announce watcher channel full, dropping event", "path", ev.Path.String())
	}
}

// acceptGroupsLoop accepts inbound unidirectional data streams, reads
// the leading stream-kind byte, and dispatches group streams to the
// subscriber. Each stream is ingested in its own goroutine so one slow
// or stalled group never blocks accepting the next.
func (c *Connection) acceptGroupsLoop(ctx context.Context, conn session.Conn) error {
	for {
		stream, err := conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: accept uni stream: %w", ErrTransport, err)
		}
		go c.ingestStream(stream)
	}
}

func (c *Connection) ingestStream(stream io.ReadCloser) {
	defer stream.Close()
	br, ok := stream.(interface {
		io.Reader
		io.ByteReader
	})
	if !ok {
		br = &byteReaderAdapter{r: stream}
	}
	kind, err := br.ReadByte()
	if err != nil {
		return
	}
	if kind != moq.StreamKindGroup {
		c.log.Warn("ignoring unidirectional stream of unknown kind", "kind", kind)
		return
	}
	header, err := moq.ReadGroupHeader(br)
	if err != nil {
		c.log.Warn("malformed group header", "error", err)
		return
	}
	if err := c.subscriber.IngestGroupStream(header, br); err != nil {
		c.log.Warn("group stream ingest failed", "subscribe_id", header.SubscribeID, "error", err)
		if errors.Is(err, subscribe.ErrUnknownSubscription) {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				_ = conn.CloseWithError(1, "unknown subscription id")
			}
		}
	}
}

// byteReaderAdapter gives an io.Reader the io.ByteReader method
// moq.ReadGroupHeader and moq.ReadDeltaFrame require, one byte at a
// time, for transports (like the real webtransport.ReceiveStream) that
// don't already implement it.
type byteReaderAdapter struct {
	r   io.Reader
	buf [1]byte
}

func (a *byteReaderAdapter) Read(p []byte) (int, error) { return a.r.Read(p) }

func (a *byteReaderAdapter) ReadByte() (byte, error) {
	_, err := io.ReadFull(a.r, a.buf[:])
	return a.buf[0], err
}
