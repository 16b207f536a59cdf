// Package transport defines the capability set every uRPC connection is
// built on (§3.3/§4.3/§4.4): asynchronous read/write/shutdown, an optional
// authenticated peer identity, and an optional TLS-exporter-derived
// application key. Two backends satisfy it: a plain byte-stream wrapper
// over net.Conn, and a TLS wrapper over crypto/tls.Conn.
package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/orbitrpc/urpc/wire"
)

// ExporterLabel is the fixed TLS exporter label used to derive the
// per-connection application cipher key (§4.5/§6.2).
const ExporterLabel = "urpc_app_key_v1"

// PeerIdentity describes the authenticated far end of a TLS handshake
// (§3.6). Only TLS backends populate it, and only after the handshake
// completes; it never changes afterward.
type PeerIdentity struct {
	Authenticated bool
	Subject       string
	Issuer        string
	CommonName    string
	DNSNames      []string
	RawCert       []byte
}

// Stream is the capability set every connection and client transport is
// built on (§4.3). Implementations must be safe for concurrent Read and
// Write from different goroutines, but Write itself is not required to be
// safe for concurrent callers; callers serialize writes with their own
// write lock.
type Stream interface {
	// Read appends up to len(p) bytes into p, returning the count read.
	// On orderly peer close it returns 0 with io.EOF.
	Read(p []byte) (int, error)

	// Write transmits all of p, or returns an error; partial writes are
	// retried internally and never observed by the caller.
	Write(p []byte) (int, error)

	// Shutdown terminates the transport. Idempotent.
	Shutdown() error

	// PeerIdentity returns the authenticated peer, if any.
	PeerIdentity() (PeerIdentity, bool)

	// ExporterKey fills out (which must be 32 bytes long) with the
	// TLS-exporter-derived application key, returning false if this
	// transport has no such key available.
	ExporterKey(out []byte) bool
}

// ErrShortWrite is returned when a stream's underlying writer produced a
// byte count that can't represent a fully transmitted buffer.
var ErrShortWrite = errors.New("transport: short write")

// ReadExact loops Read until it has accumulated exactly n bytes, treating
// a 0-byte read as end-of-stream failure (§4.3).
func ReadExact(s Stream, n int) ([]byte, bool) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		tmp := make([]byte, n-len(buf))
		r, err := s.Read(tmp)
		if err != nil || r <= 0 {
			return nil, false
		}
		buf = append(buf, tmp[:r]...)
	}
	return buf, true
}

// SendFrame serializes header and payload and writes them as one logical
// frame. Callers MUST hold the connection's write lock before calling
// this (§4.3).
func SendFrame(s Stream, h wire.Header, payload []byte) error {
	h.Length = uint32(len(payload))
	if _, err := s.Write(wire.Encode(h)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := s.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// writeFull writes all of p to w, looping over partial writes. Hidden
// below the Stream interface per §4.4 ("partial writes are an
// implementation concern hidden below this interface").
func writeFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, ErrShortWrite
		}
	}
	return total, nil
}

// shutdownOnce guards a Shutdown implementation so repeated calls are a
// no-op (§8 "Repeated shutdown() on a transport is a no-op").
type shutdownOnce struct {
	mu   sync.Mutex
	done bool
}

func (s *shutdownOnce) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return fn()
}
