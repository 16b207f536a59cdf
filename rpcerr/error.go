// Package rpcerr implements the uRPC error taxonomy and its binary error
// payload layout.
package rpcerr

import (
	"encoding/binary"
	"errors"
)

// Well-known application error codes (§7).
const (
	CodeUnknownMethod      uint32 = 404
	CodeInvalidEncrypted   uint32 = 400
	CodeMalformedErrorBody uint32 = 0
)

// Error is a uRPC application-level error: an integer code plus a
// human-readable message, matching the wire error payload (§3.2).
type Error struct {
	Code    uint32
	Message string
	Details []byte
}

func (e *Error) Error() string { return e.Message }

// New builds an Error with no details.
func New(code uint32, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ErrUnknownMethod is returned by the server when a request's method_id
// has no registered handler (§4.7.1 step 1).
func ErrUnknownMethod() *Error { return New(CodeUnknownMethod, "Unknown method") }

// ErrCipherUnavailable is returned when a request arrives ENCRYPTED but
// the transport exposes no application cipher (§4.7.1 step 4).
func ErrCipherUnavailable() *Error {
	return New(CodeInvalidEncrypted, "Encrypted payload but cipher not available")
}

// ErrInvalidEncryptedPayload is returned when decryption of an ENCRYPTED
// payload fails (§4.5/§7).
func ErrInvalidEncryptedPayload() *Error {
	return New(CodeInvalidEncrypted, "Invalid encrypted payload")
}

// ErrMalformedErrorPayload is what a client-side reader records when an
// inbound error payload can't be parsed (§4.9.3/§7 kind 5).
func ErrMalformedErrorPayload() *Error {
	return New(CodeMalformedErrorBody, "Malformed error payload")
}

// errShortPayload is the internal sentinel Decode returns on a too-short
// buffer; never sent on the wire itself.
var errShortPayload = errors.New("rpcerr: error payload shorter than 8 bytes")

// Encode serializes e into the wire error payload layout (§3.2):
// code(4) ‖ msg_len(4) ‖ message ‖ details.
func Encode(e *Error) []byte {
	msg := []byte(e.Message)
	buf := make([]byte, 8+len(msg)+len(e.Details))
	binary.BigEndian.PutUint32(buf[0:4], e.Code)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(msg)))
	copy(buf[8:8+len(msg)], msg)
	copy(buf[8+len(msg):], e.Details)
	return buf
}

// Decode parses a wire error payload. It returns errShortPayload if buf
// is too small to contain even the fixed prefix or the declared message.
func Decode(buf []byte) (*Error, error) {
	if len(buf) < 8 {
		return nil, errShortPayload
	}
	code := binary.BigEndian.Uint32(buf[0:4])
	msgLen := binary.BigEndian.Uint32(buf[4:8])
	if uint64(8+msgLen) > uint64(len(buf)) {
		return nil, errShortPayload
	}
	msg := string(buf[8 : 8+msgLen])
	details := append([]byte(nil), buf[8+msgLen:]...)
	return &Error{Code: code, Message: msg, Details: details}, nil
}
