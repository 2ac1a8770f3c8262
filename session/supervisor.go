package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/go-hang/hang/moq"
)

// State is the connection supervisor's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Conn is the transport-level connection a Dialer hands to the
// Supervisor: a control stream plus the ability to open/accept
// unidirectional data streams. It is satisfied by a thin adapter over
// *webtransport.Session in production and by an in-memory fake in
// tests, following the teacher's mockControlStream pattern.
type Conn interface {
	ControlStream() io.ReadWriteCloser
	OpenUniStream(ctx context.Context) (io.WriteCloser, error)
	AcceptUniStream(ctx context.Context) (io.ReadCloser, error)
	CloseWithError(code uint64, reason string) error
}

// Dialer opens a new transport-level connection to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Handler runs application logic (publish/subscribe) over a freshly
// negotiated connection. It should block until the connection's useful
// life ends, returning the error that ended it (or nil for a clean,
// user-initiated shutdown). Run calls Handler at most once per
// successful connection attempt.
type Handler func(ctx context.Context, conn Conn, version uint64) error

const (
	backoffBase = 250 * time.Millisecond
	backoffCap  = 10 * time.Second
)

// Supervisor implements the connecting → connected → (disconnected |
// error) state machine of C7: it dials, negotiates a protocol version,
// runs a Handler over the live connection, and on failure reconnects
// with exponential backoff and full jitter (base 250ms, cap 10s).
//
// Reconnection does not re-run any subscription state automatically:
// per spec.md §4.4 that is the surrounding Broadcast layer's
// responsibility. OnDisconnect (if set) is called each time a Handler
// returns, with the Handler's error or ErrReset if it returned nil, so the
// caller can close out Tracks tied to the old connection. A failed connect
// attempt does not call it.
type Supervisor struct {
	log    *slog.Logger
	dialer Dialer

	// ClientVersions is the set of protocol versions offered during
	// setup, most-preferred first. Defaults to every version this
	// module understands if left nil.
	ClientVersions []uint64

	// AutoReconnect enables the backoff-and-retry loop. If false, Run
	// returns on the first connection or handler failure.
	AutoReconnect bool

	// OnDisconnect, if set, is invoked with the cause every time a
	// connection ends, before any reconnect attempt.
	OnDisconnect func(cause error)

	handler Handler

	state     atomic.Int32
	sessionID atomic.Value // string, set fresh on each successful connect

	// rand.New is not used concurrently by this type: Run is not safe
	// to call twice concurrently on the same Supervisor.
	rng *rand.Rand
}

// New constructs a Supervisor that dials via d and runs h over every
// successful connection. If log is nil, slog.Default() is used.
func New(d Dialer, h Handler, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		log:     log.With("component", "session"),
		dialer:  d,
		handler: h,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// SessionID returns the identifier of the current (or most recent)
// connection, a fresh uuid.NewString() minted on every successful
// connect for log correlation and diagnostics. It is empty until the
// first connection succeeds.
func (s *Supervisor) SessionID() string {
	id, _ := s.sessionID.Load().(string)
	return id
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Run dials url and drives the connect/handle/reconnect loop until ctx
// is done, the handler returns a clean nil error with AutoReconnect
// disabled, or a non-retryable failure occurs. It returns the error
// that ended the loop, or nil for a clean shutdown.
func (s *Supervisor) Run(ctx context.Context, url string) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)
		conn, version, err := s.connect(ctx, url)
		if err != nil {
			s.setState(StateError)
			s.log.Error("connect failed", "error", err, "attempt", attempt)
			if !s.AutoReconnect {
				return err
			}
			if waitErr := s.backoff(ctx, attempt); waitErr != nil {
				return nil
			}
			attempt++
			continue
		}

		s.setState(StateConnected)
		attempt = 0
		handlerErr := s.runHandler(ctx, conn, version)

		s.setState(StateDisconnected)
		if s.OnDisconnect != nil {
			cause := handlerErr
			if cause == nil {
				cause = ErrReset
			}
			s.OnDisconnect(cause)
		}

		if ctx.Err() != nil {
			return nil
		}
		if handlerErr == nil && !s.AutoReconnect {
			return nil
		}
		if handlerErr != nil && !s.AutoReconnect {
			return handlerErr
		}

		var goAway *GoAwayError
		if errors.As(handlerErr, &goAway) && goAway.NewSessionURI != "" {
			url = goAway.NewSessionURI
		}

		if waitErr := s.backoff(ctx, attempt); waitErr != nil {
			return nil
		}
		attempt++
	}
}

func (s *Supervisor) runHandler(ctx context.Context, conn Conn, version uint64) (err error) {
	defer func() {
		if closeErr := conn.CloseWithError(0, "session ended"); closeErr != nil && err == nil {
			s.log.Debug("close connection", "error", closeErr)
		}
	}()
	return s.handler(ctx, conn, version)
}

func (s *Supervisor) backoff(ctx context.Context, attempt int) error {
	d := backoffBase * time.Duration(1<<uint(min(attempt, 16)))
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	sleep := time.Duration(s.rng.Int63n(int64(d) + 1))
	s.log.Info("reconnecting", "delay", sleep, "attempt", attempt)

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect dials and runs the setup handshake. The handshake reads and
// writes block without their own per-call context; as with the
// teacher's control-stream reads, cancellation during the handshake
// relies on the underlying Conn unblocking those calls when ctx is
// done (a real *webtransport.Session tears down its streams when the
// dial context is canceled).
func (s *Supervisor) connect(ctx context.Context, url string) (Conn, uint64, error) {
	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("dial: %w", err)
	}

	versions := s.ClientVersions
	if len(versions) == 0 {
		versions = moq.SupportedVersions
	}

	setup := moq.SessionSetup{Versions: versions}
	if err := moq.WriteControlMsg(conn.ControlStream(), moq.MsgSessionClient, moq.SerializeSessionSetup(setup)); err != nil {
		_ = conn.CloseWithError(1, "setup write failed")
		return nil, 0, fmt.Errorf("write SESSION_CLIENT: %w", err)
	}

	msgType, payload, err := moq.ReadControlMsg(conn.ControlStream())
	if err != nil {
		_ = conn.CloseWithError(1, "setup read failed")
		return nil, 0, fmt.Errorf("read SESSION_SERVER: %w", err)
	}
	if msgType != moq.MsgSessionServer {
		_ = conn.CloseWithError(1, "unexpected message")
		return nil, 0, fmt.Errorf("expected SESSION_SERVER (%#x), got %#x", moq.MsgSessionServer, msgType)
	}
	reply, err := moq.ParseSessionSetupReply(payload)
	if err != nil {
		_ = conn.CloseWithError(1, "malformed SESSION_SERVER")
		return nil, 0, fmt.Errorf("parse SESSION_SERVER: %w", err)
	}

	offered := false
	for _, v := range versions {
		if v == reply.SelectedVersion {
			offered = true
			break
		}
	}
	if !offered {
		_ = conn.CloseWithError(1, "version mismatch")
		return nil, 0, fmt.Errorf("%w: server selected %#x, not offered", moq.ErrVersionMismatch, reply.SelectedVersion)
	}

	id := uuid.NewString()
	s.sessionID.Store(id)
	s.log.Info("session established", "session_id", id, "version", reply.SelectedVersion)

	return conn, reply.SelectedVersion, nil
}

