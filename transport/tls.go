package transport

import (
	"crypto/tls"
	"time"

	"github.com/orbitrpc/urpc/wire"
)

// TLSStream wraps an established crypto/tls.Conn. Unlike the C++ original
// (which drives a hand-rolled BIO-pump handshake loop because it predates
// a Go-native TLS state machine), crypto/tls already performs the full
// non-blocking handshake internally on first Read/Write/Handshake; there
// is nothing left to hand-roll here, matching how every TLS-capable repo
// in the reference corpus defers to crypto/tls rather than reimplementing
// the state machine.
type TLSStream struct {
	conn     *tls.Conn
	timeout  time.Duration
	once     shutdownOnce
	peer     PeerIdentity
	hasPeer  bool
	appKey   [32]byte
	hasAppKey bool
}

// NewTLSStream completes (if not already complete) the handshake on conn,
// materializes the peer identity whenever the far end presented a
// certificate and, if deriveKey is true, the exporter-derived application
// key, then returns the wrapped stream. On the server side a peer identity
// exists only when the client sent a certificate; on the client side it
// exists after every handshake, since the server always presents one, so
// it is not limited to mutually authenticated connections.
func NewTLSStream(conn *tls.Conn, timeout time.Duration, deriveKey bool) (*TLSStream, error) {
	if err := conn.Handshake(); err != nil {
		return nil, err
	}

	t := &TLSStream{conn: conn, timeout: timeout}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		t.peer = PeerIdentity{
			Authenticated: state.VerifiedChains != nil || len(state.VerifiedChains) > 0,
			Subject:       cert.Subject.String(),
			Issuer:        cert.Issuer.String(),
			CommonName:    cert.Subject.CommonName,
			DNSNames:      append([]string(nil), cert.DNSNames...),
			RawCert:       append([]byte(nil), cert.Raw...),
		}
		t.hasPeer = true
	}

	if deriveKey {
		key, err := state.ExportKeyingMaterial(ExporterLabel, nil, 32)
		if err != nil {
			return nil, err
		}
		copy(t.appKey[:], key)
		t.hasAppKey = true
	}

	return t, nil
}

func (t *TLSStream) touchDeadline() {
	if t.timeout > 0 {
		_ = t.conn.SetDeadline(time.Now().Add(t.timeout))
	}
}

func (t *TLSStream) Read(buf []byte) (int, error) {
	t.touchDeadline()
	n, err := t.conn.Read(buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *TLSStream) Write(buf []byte) (int, error) {
	t.touchDeadline()
	return writeFull(t.conn, buf)
}

func (t *TLSStream) Shutdown() error {
	return t.once.do(t.conn.Close)
}

func (t *TLSStream) PeerIdentity() (PeerIdentity, bool) { return t.peer, t.hasPeer }

func (t *TLSStream) ExporterKey(out []byte) bool {
	if !t.hasAppKey || len(out) != 32 {
		return false
	}
	copy(out, t.appKey[:])
	return true
}

// HintFlags returns the TLS/MTLS flag bits a server or client should OR
// into outgoing Pong/Ping frames, reflecting this transport as a hint
// (§4.7's "TLS/MTLS hint bits derived from peer identity").
func (t *TLSStream) HintFlags() wire.Flags {
	f := wire.FlagTLS
	if t.hasPeer && t.peer.Authenticated {
		f |= wire.FlagMTLS
	}
	return f
}

// Conn exposes the underlying *tls.Conn.
func (t *TLSStream) Conn() *tls.Conn { return t.conn }
