package publish

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-hang/hang/moq"
	"github.com/go-hang/hang/path"
	"github.com/go-hang/hang/track"
)

// AnnounceEvent describes a single change to the set of announced paths,
// delivered to a WatchAnnouncements subscriber after its initial snapshot.
type AnnounceEvent struct {
	Path   path.Path
	Active bool // true for an announce, false for an unannounce
}

// watcher is one outstanding WatchAnnouncements call: events matching its
// prefix are pushed to ch as they occur, up to a small buffer, and dropped
// with a warning if the caller falls behind.
type watcher struct {
	prefix path.Path
	ch     chan AnnounceEvent
}

// Publisher owns the set of Broadcasts this side of a MoQ session is
// willing to serve, keyed by path. It answers AnnounceInterest discovery
// (via WatchAnnouncements) and Subscribe requests (via HandleSubscribe)
// against that set.
//
// Grounded on the teacher's Relay: a single RWMutex-guarded map with a
// component-scoped logger, generalized from a single fixed stream to an
// arbitrary path-keyed set of Broadcasts, and from a flat viewer fan-out
// list to prefix-matched announcement watchers.
type Publisher struct {
	log *slog.Logger

	mu         sync.RWMutex
	broadcasts map[string]*track.Broadcast
	paths      map[string]path.Path // parallel to broadcasts, keyed the same way, for prefix matching
	watchers   map[int]*watcher
	nextWatch  int
}

// New constructs an empty Publisher. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		log:        log.With("component", "publisher"),
		broadcasts: make(map[string]*track.Broadcast),
		paths:      make(map[string]path.Path),
		watchers:   make(map[int]*watcher),
	}
}

// Announce registers b under p, making it visible to current and future
// WatchAnnouncements calls whose prefix matches p. It fails with
// ErrAlreadyAnnounced if p is already registered.
func (pub *Publisher) Announce(p path.Path, b *track.Broadcast) error {
	key := p.String()

	pub.mu.Lock()
	if _, exists := pub.broadcasts[key]; exists {
		pub.mu.Unlock()
		return ErrAlreadyAnnounced
	}
	pub.broadcasts[key] = b
	pub.paths[key] = p
	watchers := make([]*watcher, 0, len(pub.watchers))
	for _, w := range pub.watchers {
		watchers = append(watchers, w)
	}
	pub.mu.Unlock()

	pub.log.Info("broadcast announced", "path", key)
	pub.fanOut(watchers, AnnounceEvent{Path: p, Active: true})
	return nil
}

// Unannounce removes p from the announced set and closes its Broadcast
// with cause. It is a no-op if p is not currently announced.
func (pub *Publisher) Unannounce(p path.Path, cause error) {
	key := p.String()

	pub.mu.Lock()
	b, ok := pub.broadcasts[key]
	if ok {
		delete(pub.broadcasts, key)
		delete(pub.paths, key)
	}
	watchers := make([]*watcher, 0, len(pub.watchers))
	for _, w := range pub.watchers {
		watchers = append(watchers, w)
	}
	pub.mu.Unlock()

	if !ok {
		return
	}
	b.Close(cause)
	pub.log.Info("broadcast unannounced", "path", key)
	pub.fanOut(watchers, AnnounceEvent{Path: p, Active: false})
}

func (pub *Publisher) fanOut(watchers []*watcher, ev AnnounceEvent) {
	for _, w := range watchers {
		if !w.prefix.Empty() {
			if _, ok := ev.Path.StripPrefix(w.prefix); !ok {
				continue
			}
		}
		select {
		case w.ch <- ev:
		default:
			pub.log.Warn("announce watcher channel full, dropping event", "path", ev.Path.String())
		}
	}
}

// WatchAnnouncements reports every currently announced path under prefix
// as an initial snapshot, then streams subsequent AnnounceEvents matching
// prefix on the returned channel until ctx is done or the returned cancel
// func is called. This mirrors the wire protocol's
// AnnounceInterest → AnnounceInit → Announce* sequence (C1/C3), but as a
// plain Go API the session layer serializes onto the control stream.
func (pub *Publisher) WatchAnnouncements(ctx context.Context, prefix path.Path) (snapshot []path.Path, events <-chan AnnounceEvent, cancel func()) {
	pub.mu.Lock()
	for _, p := range pub.paths {
		if prefix.Empty() {
			snapshot = append(snapshot, p)
			continue
		}
		if _, ok := p.StripPrefix(prefix); ok {
			snapshot = append(snapshot, p)
		}
	}
	id := pub.nextWatch
	pub.nextWatch++
	w := &watcher{prefix: prefix, ch: make(chan AnnounceEvent, 32)}
	pub.watchers[id] = w
	pub.mu.Unlock()

	cancelOnce := sync.OnceFunc(func() {
		pub.mu.Lock()
		delete(pub.watchers, id)
		pub.mu.Unlock()
	})

	go func() {
		<-ctx.Done()
		cancelOnce()
	}()

	return snapshot, w.ch, cancelOnce
}

// HandleSubscribe resolves a Subscribe request against the announced
// Broadcasts, applies the requested track parameters, and returns the
// resolved Track plus the SubscribeOK reflecting the parameters actually
// in effect. The caller (the session layer) is responsible for opening a
// data stream per Group the Track subsequently produces.
func (pub *Publisher) HandleSubscribe(s moq.Subscribe) (*track.Track, moq.SubscribeOK, error) {
	bp, err := path.FromSegments(s.Broadcast)
	if err != nil {
		return nil, moq.SubscribeOK{}, err
	}

	pub.mu.RLock()
	b, ok := pub.broadcasts[bp.String()]
	pub.mu.RUnlock()
	if !ok {
		return nil, moq.SubscribeOK{}, ErrBroadcastNotFound
	}

	t, ok := b.Track(s.Track)
	if !ok {
		return nil, moq.SubscribeOK{}, ErrTrackNotFound
	}

	t.SetPriority(s.Priority)
	if s.HasMaxLatency {
		t.SetMaxLatencyMS(s.MaxLatencyMS)
	}
	if s.HasOrdered {
		t.SetOrdered(s.Ordered)
	}

	ok2 := moq.SubscribeOK{
		ID:            s.ID,
		Priority:      t.Priority(),
		MaxLatencyMS:  t.MaxLatencyMS(),
		HasMaxLatency: s.HasMaxLatency,
		Ordered:       t.Ordered(),
		HasOrdered:    s.HasOrdered,
	}
	pub.log.Info("subscribe resolved", "broadcast", bp.String(), "track", s.Track, "id", s.ID)
	return t, ok2, nil
}
