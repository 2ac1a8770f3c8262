package subscribe

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-hang/hang/moq"
	"github.com/go-hang/hang/track"
)

// Subscriber owns the set of outstanding subscriptions this side of a
// MoQ session has issued, keyed by the monotonically-increasing
// subscribe id it assigned when sending each Subscribe.
//
// Grounded on the teacher's MoQSession.subscriptions map (name-keyed,
// mutex-guarded, one entry per outstanding track subscription),
// generalized from a track-name key to the wire's subscribe-id key and
// from per-frame channels to the module's own Track/Group types.
type Subscriber struct {
	log *slog.Logger

	nextID atomic.Uint64

	maxRequestIDSet atomic.Bool
	maxRequestID    atomic.Uint64

	mu     sync.RWMutex
	tracks map[uint64]*track.Track
}

// New constructs an empty Subscriber. If log is nil, slog.Default() is
// used.
func New(log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		log:    log.With("component", "subscriber"),
		tracks: make(map[uint64]*track.Track),
	}
}

// NextSubscribeID allocates the next subscribe id to use in an outgoing
// Subscribe message. Ids start at 0 and increase monotonically.
//
// NextSubscribeID does not enforce the peer's MAX_REQUEST_ID ceiling;
// callers that have negotiated flow control should use Allocate
// instead. Both share the same counter.
func (s *Subscriber) NextSubscribeID() uint64 {
	return s.nextID.Add(1) - 1
}

// SetMaxRequestID records the peer-advertised MAX_REQUEST_ID ceiling: a
// subscribe id at or above id has not been granted by the peer and must
// not be allocated. A MAX_REQUEST_ID received later raises the
// ceiling; it can only move forward.
func (s *Subscriber) SetMaxRequestID(id uint64) {
	s.maxRequestIDSet.Store(true)
	for {
		current := s.maxRequestID.Load()
		if id <= current {
			return
		}
		if s.maxRequestID.CompareAndSwap(current, id) {
			return
		}
	}
}

// Allocate is NextSubscribeID with a proactive MAX_REQUEST_ID check: it
// fails with ErrRequestIDExhausted rather than handing out an id the
// peer has not granted room for, per spec.md §4's MAX_REQUEST_ID flow
// control. If SetMaxRequestID has never been called, allocation is
// unbounded.
func (s *Subscriber) Allocate() (uint64, error) {
	for {
		current := s.nextID.Load()
		if s.maxRequestIDSet.Load() && current >= s.maxRequestID.Load() {
			return 0, ErrRequestIDExhausted
		}
		if s.nextID.CompareAndSwap(current, current+1) {
			return current, nil
		}
	}
}

// Register associates id with t, so that a later inbound Group stream or
// control message addressed to id is routed to t. It fails with
// ErrAlreadyRegistered if id is already in use.
func (s *Subscriber) Register(id uint64, t *track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tracks[id]; exists {
		return ErrAlreadyRegistered
	}
	s.tracks[id] = t
	return nil
}

// Lookup returns the Track registered under id, if any.
func (s *Subscriber) Lookup(id uint64) (*track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Remove unregisters id and closes its Track with cause. It is a no-op
// if id is not registered.
func (s *Subscriber) Remove(id uint64, cause error) {
	s.mu.Lock()
	t, ok := s.tracks[id]
	if ok {
		delete(s.tracks, id)
	}
	s.mu.Unlock()

	if ok {
		t.Close(cause)
	}
}

// IngestGroupStream demultiplexes one inbound unidirectional data stream
// carrying delta-encoded frames for header.SubscribeID: it constructs a
// track.Group at header.GroupSequence, registers it on the matching Track
// immediately (so a waiting Decode/NextGroup sees it as soon as the first
// frame lands), then reads frames from r until EOF or error, reconstructing
// each frame's timestamp by accumulating wire deltas.
//
// A subscribe id that this Subscriber never assigned (id >= the next id
// NextSubscribeID would hand out) is a hard protocol error per spec.md
// §4.3: IngestGroupStream returns ErrUnknownSubscription and the caller
// must terminate the connection rather than continue reading the stream.
// A subscribe id that was assigned but has since been Removed (e.g. an
// Unsubscribe raced the peer opening this stream) is not an error: the
// stream is drained and discarded.
//
// moq.ReadDeltaFrame decodes the wire delta as an unsigned VarInt, so a
// negative delta cannot occur at this layer: it is rejected structurally
// rather than clamped at runtime.
func (s *Subscriber) IngestGroupStream(header moq.GroupHeader, r io.Reader) error {
	if header.SubscribeID >= s.nextID.Load() {
		return ErrUnknownSubscription
	}

	t, ok := s.Lookup(header.SubscribeID)
	if !ok {
		_, _ = io.Copy(io.Discard, r)
		return nil
	}

	g := track.NewGroup(header.GroupSequence)
	if err := t.InsertGroup(g); err != nil {
		// Track rejected the group outright (late sequence, or the
		// track has already closed); drain the stream and stop.
		_, _ = io.Copy(io.Discard, r)
		return nil
	}

	var elapsedMS uint64
	for i := 0; ; i++ {
		deltaMS, payload, err := moq.ReadDeltaFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				g.Close(nil)
				return nil
			}
			g.Close(err)
			return err
		}

		if i == 0 {
			elapsedMS = deltaMS
		} else {
			elapsedMS += deltaMS
		}

		f := track.Frame{
			Timestamp: int64(elapsedMS) * 1000,
			Data:      payload,
			Keyframe:  i == 0,
		}
		if err := g.AppendFrame(f); err != nil {
			return err
		}
	}
}
