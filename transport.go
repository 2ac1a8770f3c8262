package hang

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/quic-go/webtransport-go"

	"github.com/go-hang/hang/certs"
	"github.com/go-hang/hang/session"
)

// NewWebTransportDialer returns a session.Dialer backed by
// github.com/quic-go/webtransport-go: the concrete WebTransport
// implementation spec.md §6 requires, kept out of the session package
// so session itself stays testable against an in-memory fake (see
// session/supervisor_test.go).
//
// Grounded on distribution/moq_session.go's use of a *webtransport.Session
// plus one bidirectional stream as the MoQ control stream, inverted from
// the teacher's server-accepts-a-session role to a client dial.
func NewWebTransportDialer(tlsConfig *tls.Config) session.Dialer {
	return &webtransportDialer{dialer: &webtransport.Dialer{TLSClientConfig: tlsConfig}}
}

// NewPinnedWebTransportDialer is NewWebTransportDialer for a relay
// presenting a self-signed certificate (certs.Generate): fingerprints
// are the base64 SHA-256 fingerprints (Config.PinnedFingerprints) the
// relay is expected to present, verified via certs.PinnedTLSConfig
// instead of a CA chain.
func NewPinnedWebTransportDialer(fingerprints []string) (session.Dialer, error) {
	tlsConfig, err := certs.PinnedTLSConfig(fingerprints...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return NewWebTransportDialer(tlsConfig), nil
}

type webtransportDialer struct {
	dialer *webtransport.Dialer
}

func (d *webtransportDialer) Dial(ctx context.Context, url string) (session.Conn, error) {
	_, sess, err := d.dialer.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: webtransport dial: %v", ErrTransport, err)
	}
	control, err := sess.OpenStreamSync(ctx)
	if err != nil {
		_ = sess.CloseWithError(0, "control stream open failed")
		return nil, fmt.Errorf("%w: open control stream: %v", ErrTransport, err)
	}
	return &webtransportConn{session: sess, control: control}, nil
}

// webtransportConn implements session.Conn over a live WebTransport
// session, exposing the first bidirectional stream opened as the
// control stream per spec.md §6.
type webtransportConn struct {
	session *webtransport.Session
	control webtransport.Stream
}

func (c *webtransportConn) ControlStream() io.ReadWriteCloser { return c.control }

func (c *webtransportConn) OpenUniStream(ctx context.Context) (io.WriteCloser, error) {
	s, err := c.session.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open uni stream: %v", ErrTransport, err)
	}
	return s, nil
}

func (c *webtransportConn) AcceptUniStream(ctx context.Context) (io.ReadCloser, error) {
	s, err := c.session.AcceptUniStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: accept uni stream: %v", ErrTransport, err)
	}
	return s, nil
}

func (c *webtransportConn) CloseWithError(code uint64, reason string) error {
	return c.session.CloseWithError(webtransport.SessionErrorCode(code), reason)
}
