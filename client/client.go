// Package client implements the uRPC client connection (§4.9): a
// connect-once transport, an atomic stream-id counter, a reader goroutine
// that correlates responses to pending calls, and an optional liveness
// task built on the ping/pong frames.
package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/appcrypto"
	"github.com/orbitrpc/urpc/rpcerr"
	"github.com/orbitrpc/urpc/transport"
	"github.com/orbitrpc/urpc/wire"
)

// ErrClosedByPeer is the sentinel failure message every outstanding call
// and ping waiter receives when the connection tears down (§4.9.3/§4.9.6).
var ErrClosedByPeer = errors.New("connection closed by peer")

// Config configures a Client (§4.11's client config record).
type Config struct {
	Addr            string
	Factory         transport.StreamFactory
	PingInterval    time.Duration
	SocketTimeout   time.Duration
	DialTimeout     time.Duration
	Logger          zerolog.Logger
	UseAppCipher    bool
	PayloadCapBytes uint32
}

type pendingCall struct {
	done     chan struct{}
	response []byte
	err      error
}

type pingWaiter struct {
	done chan struct{}
}

// Client is a single uRPC client connection, safe for concurrent Call
// invocations (§4.9).
type Client struct {
	cfg Config

	connectMu sync.Mutex
	running   atomic.Bool
	stream    atomic.Pointer[transport.Stream]

	nextStreamID atomic.Uint32

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint32]*pendingCall

	pingMu   sync.Mutex
	pingWait map[uint32]*pingWaiter

	cipher    appcrypto.Context
	hasCipher bool

	stopLiveness chan struct{}
}

// New builds an idle client. No connection is established until the
// first Call, Ping, or explicit Connect.
func New(cfg Config) *Client {
	c := &Client{
		cfg:      cfg,
		pending:  make(map[uint32]*pendingCall),
		pingWait: make(map[uint32]*pingWaiter),
	}
	c.nextStreamID.Store(1)
	return c
}

// Connect implements ensure_connected (§4.9.1): re-entrant, race-free via
// connectMu. Returns nil if a transport is already live.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.running.Load() && c.stream.Load() != nil {
		return nil
	}

	c.stream.Store(nil)

	s, err := c.cfg.Factory.DialClient(ctx, c.cfg.Addr)
	if err != nil {
		return err
	}

	var key [32]byte
	if c.cfg.UseAppCipher && s.ExporterKey(key[:]) {
		if cipherCtx, err := appcrypto.NewContext(key[:]); err == nil {
			c.cipher = cipherCtx
			c.hasCipher = true
		}
	}

	c.stream.Store(&s)
	c.running.Store(true)

	go c.readLoop(s)

	if c.cfg.PingInterval > 0 {
		c.stopLiveness = make(chan struct{})
		go c.livenessLoop(c.stopLiveness)
	}

	return nil
}

func (c *Client) currentStream() (transport.Stream, bool) {
	p := c.stream.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Call implements issuing a request and awaiting its response (§4.9.2).
func (c *Client) Call(ctx context.Context, methodID uint64, body []byte) ([]byte, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	streamID := c.allocStreamID()

	call := &pendingCall{done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[streamID] = call
	c.pendingMu.Unlock()

	flags := wire.FlagEndStream
	payload := body
	if c.hasCipher && len(body) > 0 {
		encrypted, err := appcrypto.Encrypt(c.cipher, body)
		if err != nil {
			c.dropPending(streamID)
			return nil, err
		}
		payload = encrypted
		flags |= wire.FlagEncrypted
	}

	h := wire.Header{Type: wire.FrameRequest, Flags: flags, StreamID: streamID, MethodID: methodID}
	if err := c.sendFrame(h, payload); err != nil {
		c.dropPending(streamID)
		return nil, err
	}

	select {
	case <-call.done:
	case <-ctx.Done():
		c.dropPending(streamID)
		return nil, ctx.Err()
	}

	c.dropPending(streamID)
	if call.err != nil {
		return nil, call.err
	}
	return call.response, nil
}

// CallName is a convenience overload hashing name at call time (§4.9.2).
func (c *Client) CallName(ctx context.Context, name string, body []byte) ([]byte, error) {
	return c.Call(ctx, wire.MethodID(name), body)
}

// Cancel emits a Cancel frame for streamID (§5): client-initiated
// cancellation tells the server to stop processing the in-flight request,
// but it does not touch the local pending-call entry. The caller's Call
// goroutine stays blocked on call.done until the server actually replies
// (with either a real response or an error), or until its own ctx expires.
func (c *Client) Cancel(streamID uint32) error {
	h := wire.Header{Type: wire.FrameCancel, Flags: wire.FlagEndStream, StreamID: streamID}
	return c.sendFrame(h, nil)
}

func (c *Client) dropPending(streamID uint32) {
	c.pendingMu.Lock()
	delete(c.pending, streamID)
	c.pendingMu.Unlock()
}

func (c *Client) allocStreamID() uint32 {
	for {
		id := c.nextStreamID.Add(1) - 1
		if id != 0 {
			return id
		}
		// Wrapped to 0; skip it (§4.9's "skip 0 if it wraps").
	}
}

func (c *Client) sendFrame(h wire.Header, payload []byte) error {
	stream, ok := c.currentStream()
	if !ok {
		return errors.New("client: not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return transport.SendFrame(stream, h, payload)
}

// Ping implements §4.9.4: returns true only if a Pong actually arrived
// before the reader loop tore the waiter down on termination.
func (c *Client) Ping(ctx context.Context) bool {
	if err := c.Connect(ctx); err != nil {
		return false
	}

	streamID := c.allocStreamID()
	waiter := &pingWaiter{done: make(chan struct{})}
	c.pingMu.Lock()
	c.pingWait[streamID] = waiter
	c.pingMu.Unlock()

	h := wire.Header{Type: wire.FramePing, Flags: wire.FlagEndStream, StreamID: streamID}
	if err := c.sendFrame(h, nil); err != nil {
		c.pingMu.Lock()
		delete(c.pingWait, streamID)
		c.pingMu.Unlock()
		return false
	}

	select {
	case <-waiter.done:
	case <-ctx.Done():
		c.pingMu.Lock()
		delete(c.pingWait, streamID)
		c.pingMu.Unlock()
		return false
	}

	// wakePingWaiter leaves the entry in place on a Pong, while terminate
	// removes it, so the entry is still present only for a real Pong.
	c.pingMu.Lock()
	_, stillPresent := c.pingWait[streamID]
	delete(c.pingWait, streamID)
	c.pingMu.Unlock()

	return stillPresent
}

// readLoop implements §4.9.3.
func (c *Client) readLoop(stream transport.Stream) {
	for {
		raw, ok := transport.ReadExact(stream, wire.HeaderSize)
		if !ok {
			break
		}
		h, magic, err := wire.Decode(raw)
		if err != nil {
			break
		}
		if err := wire.ValidateHeader(magic, h); err != nil {
			break
		}

		var body []byte
		if h.Length > 0 {
			limit := c.cfg.PayloadCapBytes
			if limit == 0 {
				limit = wire.MaxPayloadBytes
			}
			if h.Length > limit {
				break
			}
			buf, ok := transport.ReadExact(stream, int(h.Length))
			if !ok {
				break
			}
			body = buf
		}

		switch h.Type {
		case wire.FrameResponse:
			c.deliverResponse(h, body)
		case wire.FramePing:
			c.replyPong(h)
		case wire.FramePong:
			c.wakePingWaiter(h.StreamID)
		default:
			c.cfg.Logger.Debug().Stringer("type", h.Type).Msg("ignoring frame")
		}
	}

	c.terminate(stream)
}

func (c *Client) deliverResponse(h wire.Header, body []byte) {
	c.pendingMu.Lock()
	call, ok := c.pending[h.StreamID]
	c.pendingMu.Unlock()
	if !ok {
		// Protocol violation: response for an unknown stream id (§4.9.3).
		return
	}

	switch {
	case h.Flags.Has(wire.FlagEncrypted) && h.Flags.Has(wire.FlagError):
		plain, err := c.maybeDecrypt(body)
		if err != nil {
			// Decryption itself failed, so the ERROR payload underneath was
			// never reached: report it as a decryption failure (code 0), not
			// as whatever application error the server meant to send.
			call.err = rpcerr.New(0, "decryption failed: "+err.Error())
		} else {
			call.err = decodeErrorPayload(plain)
		}
	case h.Flags.Has(wire.FlagError):
		call.err = decodeErrorPayload(body)
	case h.Flags.Has(wire.FlagEncrypted):
		plain, err := c.maybeDecrypt(body)
		if err != nil {
			call.err = rpcerr.New(0, "decryption failed: "+err.Error())
		} else {
			call.response = plain
		}
	default:
		call.response = body
	}
	close(call.done)
}

func (c *Client) maybeDecrypt(body []byte) ([]byte, error) {
	if !c.hasCipher {
		return nil, errors.New("no cipher context available")
	}
	return appcrypto.Decrypt(c.cipher, body)
}

func decodeErrorPayload(body []byte) error {
	rpcErr, err := rpcerr.Decode(body)
	if err != nil {
		return rpcerr.ErrMalformedErrorPayload()
	}
	return rpcErr
}

func (c *Client) replyPong(h wire.Header) {
	reply := wire.Header{Type: wire.FramePong, Flags: wire.FlagEndStream, StreamID: h.StreamID, MethodID: h.MethodID}
	_ = c.sendFrame(reply, nil)
}

func (c *Client) wakePingWaiter(streamID uint32) {
	c.pingMu.Lock()
	waiter, ok := c.pingWait[streamID]
	c.pingMu.Unlock()
	if ok {
		close(waiter.done)
	}
}

// terminate implements the reader loop's failure sweep (§4.9.3). The
// client's transport is reset only while it is still stream, the one this
// reader loop was reading, so a transport from a later reconnect is kept.
func (c *Client) terminate(stream transport.Stream) {
	c.running.Store(false)

	c.pendingMu.Lock()
	for id, call := range c.pending {
		call.err = ErrClosedByPeer
		close(call.done)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.pingMu.Lock()
	for id, waiter := range c.pingWait {
		close(waiter.done)
		delete(c.pingWait, id)
	}
	c.pingMu.Unlock()

	c.connectMu.Lock()
	if p := c.stream.Load(); p != nil && *p == stream {
		c.stream.Store(nil)
	}
	c.connectMu.Unlock()
}

// livenessLoop implements §4.9.5.
func (c *Client) livenessLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PingInterval)
			ok := c.Ping(ctx)
			cancel()
			if !ok {
				c.Close()
				return
			}
		}
	}
}

// Close implements §4.9.6: clears the running flag, exchanges the
// transport out, and shuts it down, letting the reader loop's own
// failure sweep run its course.
func (c *Client) Close() error {
	c.running.Store(false)
	if c.stopLiveness != nil {
		select {
		case <-c.stopLiveness:
		default:
			close(c.stopLiveness)
		}
	}

	p := c.stream.Swap(nil)
	if p == nil {
		return nil
	}
	return (*p).Shutdown()
}
