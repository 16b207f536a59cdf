package transport

import (
	"net"
	"time"
)

// PlainStream is a thin wrapper over a plain net.Conn byte stream, with no
// peer identity and no exporter key (§4.4). An optional inactivity
// timeout is applied to every Read/Write via the connection's deadline.
type PlainStream struct {
	conn    net.Conn
	timeout time.Duration
	once    shutdownOnce
}

// NewPlainStream wraps conn. A zero timeout disables the inactivity
// deadline.
func NewPlainStream(conn net.Conn, timeout time.Duration) *PlainStream {
	return &PlainStream{conn: conn, timeout: timeout}
}

func (p *PlainStream) touchDeadline() {
	if p.timeout > 0 {
		_ = p.conn.SetDeadline(time.Now().Add(p.timeout))
	}
}

func (p *PlainStream) Read(buf []byte) (int, error) {
	p.touchDeadline()
	n, err := p.conn.Read(buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PlainStream) Write(buf []byte) (int, error) {
	p.touchDeadline()
	return writeFull(p.conn, buf)
}

func (p *PlainStream) Shutdown() error {
	return p.once.do(p.conn.Close)
}

func (p *PlainStream) PeerIdentity() (PeerIdentity, bool) { return PeerIdentity{}, false }

func (p *PlainStream) ExporterKey(out []byte) bool { return false }

// Conn exposes the underlying net.Conn, useful to callers that need the
// raw address (logging, metrics) without widening the Stream interface.
func (p *PlainStream) Conn() net.Conn { return p.conn }
