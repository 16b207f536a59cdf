package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// StreamFactory produces transports symmetrically for client and server,
// hiding which backend is in use from the caller.
type StreamFactory interface {
	// DialClient connects to addr and returns a client-side transport.
	DialClient(ctx context.Context, addr string) (Stream, error)

	// AcceptServer wraps an already-accepted socket as a server-side
	// transport. A nil Stream with a nil error signals the connection
	// should be silently dropped (e.g. handshake failure).
	AcceptServer(conn net.Conn) (Stream, error)
}

// PlainFactory produces PlainStream transports over net.Dial/net.Listener
// accepts, with no TLS and no application encryption.
type PlainFactory struct {
	// Timeout is the optional per-socket inactivity timeout.
	Timeout time.Duration
}

func (f PlainFactory) DialClient(ctx context.Context, addr string) (Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewPlainStream(conn, f.Timeout), nil
}

func (f PlainFactory) AcceptServer(conn net.Conn) (Stream, error) {
	return NewPlainStream(conn, f.Timeout), nil
}

// TLSFactory produces TLSStream transports, driving a client or server TLS
// handshake over an already-established TCP socket (§4.4).
type TLSFactory struct {
	// ClientConfig is used when dialing; ServerConfig when accepting.
	ClientConfig *tls.Config
	ServerConfig *tls.Config

	Timeout time.Duration

	// DeriveAppKey, when true, derives the application cipher key via
	// the TLS exporter immediately after the handshake (§4.5).
	DeriveAppKey bool
}

func (f TLSFactory) DialClient(ctx context.Context, addr string) (Stream, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, f.ClientConfig)
	return NewTLSStream(conn, f.Timeout, f.DeriveAppKey)
}

func (f TLSFactory) AcceptServer(conn net.Conn) (Stream, error) {
	tlsConn := tls.Server(conn, f.ServerConfig)
	stream, err := NewTLSStream(tlsConn, f.Timeout, f.DeriveAppKey)
	if err != nil {
		// Handshake failed (e.g. a required client cert was missing or
		// invalid): drop the connection rather than surfacing an error
		// to the accept loop (§4.4/§4.8).
		_ = conn.Close()
		return nil, nil
	}
	return stream, nil
}
