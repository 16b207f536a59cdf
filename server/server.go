// Package server implements the uRPC server connection and accept loop
// (§4.7/§4.8): a sequential frame reader that dispatches each request to
// its own goroutine, a cancellation map keyed by stream id, and a
// response/error writer serialized behind a per-connection write mutex.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/appcrypto"
	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcerr"
	"github.com/orbitrpc/urpc/rpcregistry"
	"github.com/orbitrpc/urpc/transport"
	"github.com/orbitrpc/urpc/wire"
)

// Connection is a single server-side uRPC connection: one reader goroutine
// plus one dispatch goroutine per in-flight request, with cancellation
// tracked per stream id and responses serialized behind a write mutex.
type Connection struct {
	stream   transport.Stream
	registry *rpcregistry.Registry
	logger   zerolog.Logger

	writeMu sync.Mutex

	cancelMu sync.Mutex
	cancels  map[uint32]context.CancelFunc

	cipher      appcrypto.Context
	hasCipher   bool
	peer        transport.PeerIdentity
	hasPeer     bool
	payloadCap  uint32
}

// NewConnection wraps an already-established transport. payloadCap is the
// policy ceiling the reader loop applies to each frame's payload length;
// 0 means wire.MaxPayloadBytes.
func NewConnection(stream transport.Stream, registry *rpcregistry.Registry, logger zerolog.Logger, payloadCap uint32) *Connection {
	c := &Connection{
		stream:     stream,
		registry:   registry,
		logger:     logger,
		cancels:    make(map[uint32]context.CancelFunc),
		payloadCap: payloadCap,
	}
	if payloadCap == 0 {
		c.payloadCap = wire.MaxPayloadBytes
	}
	c.peer, c.hasPeer = stream.PeerIdentity()

	var key [32]byte
	if stream.ExporterKey(key[:]) {
		if ctx, err := appcrypto.NewContext(key[:]); err == nil {
			c.cipher = ctx
			c.hasCipher = true
		}
	}
	return c
}

// Serve runs the reader loop until the transport fails or a framing error
// occurs, then shuts the transport down and returns (§4.7).
func (c *Connection) Serve() {
	defer c.stream.Shutdown()

	for {
		header, err := readHeaderFrom(c.stream)
		if err != nil {
			return
		}

		var body []byte
		if header.Length > 0 {
			body, err = readPayloadFrom(c.stream, header, c.payloadCap)
			if err != nil {
				return
			}
		}

		switch header.Type {
		case wire.FrameRequest:
			go c.handleRequest(header, body)
		case wire.FrameCancel:
			c.handleCancel(header.StreamID)
		case wire.FramePing:
			c.handlePing(header)
		default:
			c.logger.Debug().Stringer("type", header.Type).Msg("ignoring frame")
		}
	}
}

func (c *Connection) handleCancel(streamID uint32) {
	c.cancelMu.Lock()
	cancel, ok := c.cancels[streamID]
	delete(c.cancels, streamID)
	c.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Connection) handlePing(h wire.Header) {
	flags := wire.FlagEndStream | c.peerHintFlags()
	reply := wire.Header{
		Type:     wire.FramePong,
		Flags:    flags,
		StreamID: h.StreamID,
		MethodID: h.MethodID,
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = transport.SendFrame(c.stream, reply, nil)
}

func (c *Connection) peerHintFlags() wire.Flags {
	if !c.hasPeer || !c.peer.Authenticated {
		return 0
	}
	if len(c.peer.RawCert) > 0 && c.peer.CommonName != "" {
		return wire.FlagTLS | wire.FlagMTLS
	}
	return wire.FlagTLS
}

// handleRequest implements §4.7.1 steps 1-7.
func (c *Connection) handleRequest(h wire.Header, body []byte) {
	handler, ok := c.registry.Find(h.MethodID)
	if !ok {
		c.sendError(h.StreamID, h.MethodID, rpcerr.ErrUnknownMethod())
		return
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	c.cancelMu.Lock()
	c.cancels[h.StreamID] = cancel
	c.cancelMu.Unlock()
	defer cancel()

	hctx := rpcctx.New(h.StreamID, h.MethodID, h.Flags, c.peer, c.hasPeer, cancelCtx)

	reqBody := body
	if h.Flags.Has(wire.FlagEncrypted) {
		if !c.hasCipher {
			c.finishRequest(h.StreamID)
			c.sendError(h.StreamID, h.MethodID, rpcerr.ErrCipherUnavailable())
			return
		}
		plain, err := appcrypto.Decrypt(c.cipher, body)
		if err != nil {
			c.finishRequest(h.StreamID)
			c.sendError(h.StreamID, h.MethodID, rpcerr.ErrInvalidEncryptedPayload())
			return
		}
		reqBody = plain
	}

	resp, err := handler(hctx, reqBody)
	c.finishRequest(h.StreamID)

	if err != nil {
		rpcErr, ok := err.(*rpcerr.Error)
		if !ok {
			rpcErr = rpcerr.New(500, err.Error())
		}
		c.sendError(h.StreamID, h.MethodID, rpcErr)
		return
	}

	c.sendResponse(h.StreamID, h.MethodID, resp)
}

func (c *Connection) finishRequest(streamID uint32) {
	c.cancelMu.Lock()
	delete(c.cancels, streamID)
	c.cancelMu.Unlock()
}

// sendResponse implements §4.7.2's send_response.
func (c *Connection) sendResponse(streamID uint32, methodID uint64, body []byte) {
	flags := wire.FlagEndStream
	payload := body
	if c.hasCipher && len(body) > 0 {
		encrypted, err := appcrypto.Encrypt(c.cipher, body)
		if err != nil {
			c.sendError(streamID, methodID, rpcerr.New(500, "failed to encrypt response"))
			return
		}
		payload = encrypted
		flags |= wire.FlagEncrypted
	}

	h := wire.Header{
		Type:     wire.FrameResponse,
		Flags:    flags,
		StreamID: streamID,
		MethodID: methodID,
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := transport.SendFrame(c.stream, h, payload); err != nil {
		c.logger.Debug().Err(err).Msg("failed to write response")
	}
}

// sendError implements §4.7.2's send_simple_error.
func (c *Connection) sendError(streamID uint32, methodID uint64, rpcErr *rpcerr.Error) {
	payload := rpcerr.Encode(rpcErr)
	flags := wire.FlagEndStream | wire.FlagError
	if c.hasCipher && len(payload) > 0 {
		if encrypted, err := appcrypto.Encrypt(c.cipher, payload); err == nil {
			payload = encrypted
			flags |= wire.FlagEncrypted
		}
	}

	h := wire.Header{
		Type:     wire.FrameResponse,
		Flags:    flags,
		StreamID: streamID,
		MethodID: methodID,
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := transport.SendFrame(c.stream, h, payload); err != nil {
		c.logger.Debug().Err(err).Msg("failed to write error response")
	}
}

func readHeaderFrom(s transport.Stream) (wire.Header, error) {
	raw, ok := transport.ReadExact(s, wire.HeaderSize)
	if !ok {
		return wire.Header{}, wire.ErrShortHeader
	}
	h, magic, err := wire.Decode(raw)
	if err != nil {
		return wire.Header{}, err
	}
	if err := wire.ValidateHeader(magic, h); err != nil {
		return wire.Header{}, err
	}
	return h, nil
}

func readPayloadFrom(s transport.Stream, h wire.Header, limit uint32) ([]byte, error) {
	if limit > 0 && h.Length > limit {
		return nil, wire.ErrPayloadTooBig
	}
	buf, ok := transport.ReadExact(s, int(h.Length))
	if !ok {
		return nil, wire.ErrShortPayload
	}
	return buf, nil
}

// Server owns a listener, the shared method registry, and a stream
// factory, and spawns one Connection per accepted socket (§4.8).
type Server struct {
	Factory    transport.StreamFactory
	Registry   *rpcregistry.Registry
	Logger     zerolog.Logger
	PayloadCap uint32

	// AcceptBackoff is the pause between failed Accept calls (§4.8 step 2).
	AcceptBackoff time.Duration

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
}

// NewServer builds a Server ready to Serve. factory and registry must be
// non-nil.
func NewServer(factory transport.StreamFactory, registry *rpcregistry.Registry, logger zerolog.Logger) *Server {
	return &Server{
		Factory:       factory,
		Registry:      registry,
		Logger:        logger,
		AcceptBackoff: 50 * time.Millisecond,
	}
}

// Serve binds network/address and runs the accept loop until Shutdown is
// called or a fatal listener error occurs (§4.8).
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			s.Logger.Warn().Err(err).Msg("accept failed, backing off")
			time.Sleep(s.AcceptBackoff)
			continue
		}

		stream, err := s.Factory.AcceptServer(conn)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("failed to wrap accepted connection")
			_ = conn.Close()
			continue
		}
		if stream == nil {
			// Handshake failed or was otherwise rejected; the factory
			// already closed the raw socket (§4.4).
			continue
		}

		c := NewConnection(stream, s.Registry, s.Logger, s.PayloadCap)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.Serve()
		}()
	}
}

// Shutdown closes the listener and waits up to timeout for in-flight
// connections to finish their reader loops.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closing = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errShutdownTimeout
	}
}

var errShutdownTimeout = rpcerr.New(408, "timeout waiting for connections to close")
