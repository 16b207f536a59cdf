// Package wire implements the uRPC frame codec: the fixed 28-byte header
// that precedes every payload on the wire, and the enums that describe it.
//
// Frame format (all multi-byte fields big-endian, no padding):
//
//	0        4  5  6      8         12        16               24        28
//	┌────────┬──┬──┬──────┬─────────┬─────────┬────────────────┬─────────┐
//	│ magic  │v │ty│flags │reserved │stream_id│    method_id   │ length  │
//	│ uint32 │u8│u8│uint16│ uint32  │ uint32  │     uint64     │ uint32  │
//	└────────┴──┴──┴──────┴─────────┴─────────┴────────────────┴─────────┘
//
// The codec only serializes and parses the header; it performs no
// validation (bad magic/version are a caller concern) and payload bytes
// are read separately by the caller once it knows `length`.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// Magic identifies a uRPC frame: the ASCII bytes "URPC".
const Magic uint32 = 0x55525043

// Version is the only wire version this module speaks.
const Version uint8 = 1

// HeaderSize is the fixed on-wire size of a frame header, in bytes.
const HeaderSize = 28

// MaxPayloadBytes is the default policy limit on a single frame's payload.
// The wire format itself leaves length unbounded beyond the 32-bit field;
// this is a resource-exhaustion guard, and exceeding it is a framing error.
const MaxPayloadBytes uint32 = 16 << 20

// FrameType distinguishes the six frame kinds on the wire.
type FrameType uint8

const (
	FrameRequest  FrameType = 0
	FrameResponse FrameType = 1
	FrameStream   FrameType = 2 // reserved: never emitted, ignored on receipt
	FrameCancel   FrameType = 3
	FramePing     FrameType = 4
	FramePong     FrameType = 5
)

func (t FrameType) String() string {
	switch t {
	case FrameRequest:
		return "Request"
	case FrameResponse:
		return "Response"
	case FrameStream:
		return "Stream"
	case FrameCancel:
		return "Cancel"
	case FramePing:
		return "Ping"
	case FramePong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// Flags is the frame flag bitmask (§3.3).
type Flags uint16

const (
	FlagEndStream  Flags = 0x01
	FlagError      Flags = 0x02
	FlagCompressed Flags = 0x04 // reserved
	FlagTLS        Flags = 0x08
	FlagMTLS       Flags = 0x10
	FlagEncrypted  Flags = 0x20
)

// Has reports whether f contains all bits in mask.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

var (
	ErrBadMagic      = errors.New("wire: bad magic number")
	ErrBadVersion    = errors.New("wire: unsupported version")
	ErrShortHeader   = errors.New("wire: short header read")
	ErrShortPayload  = errors.New("wire: short payload read")
	ErrPayloadTooBig = errors.New("wire: payload exceeds policy limit")
)

// Header is the parsed, typed form of the 28-byte frame header.
type Header struct {
	Version  uint8
	Type     FrameType
	Flags    Flags
	StreamID uint32
	MethodID uint64
	Length   uint32
}

// Encode serializes h into the canonical 28-byte header layout. The
// reserved 4 bytes are always written as zero, and a zero h.Version is
// written as Version, so headers built without a Version are valid frames.
func Encode(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	version := h.Version
	if version == 0 {
		version = Version
	}
	buf[4] = version
	buf[5] = byte(h.Type)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Flags))
	binary.BigEndian.PutUint32(buf[8:12], 0) // reserved
	binary.BigEndian.PutUint32(buf[12:16], h.StreamID)
	binary.BigEndian.PutUint64(buf[16:24], h.MethodID)
	binary.BigEndian.PutUint32(buf[24:28], h.Length)
	return buf
}

// Decode parses a 28-byte header. It performs no magic/version validation;
// callers check Header.Version and the magic themselves (ValidateHeader
// does both in one call).
func Decode(buf []byte) (Header, uint32, error) {
	if len(buf) != HeaderSize {
		return Header{}, 0, ErrShortHeader
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	h := Header{
		Version:  buf[4],
		Type:     FrameType(buf[5]),
		Flags:    Flags(binary.BigEndian.Uint16(buf[6:8])),
		StreamID: binary.BigEndian.Uint32(buf[12:16]),
		MethodID: binary.BigEndian.Uint64(buf[16:24]),
		Length:   binary.BigEndian.Uint32(buf[24:28]),
	}
	return h, magic, nil
}

// ValidateHeader checks the magic number and version of a decoded header,
// given the raw magic value returned by Decode.
func ValidateHeader(magic uint32, h Header) error {
	if magic != Magic {
		return ErrBadMagic
	}
	if h.Version != Version {
		return ErrBadVersion
	}
	return nil
}

// ReadHeader reads exactly HeaderSize bytes from r and parses/validates them.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, ErrShortHeader
	}
	h, magic, err := Decode(buf)
	if err != nil {
		return Header{}, err
	}
	if err := ValidateHeader(magic, h); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadPayload reads exactly h.Length bytes from r, enforcing limit as a
// policy ceiling on resource exhaustion (§9 Open Question (a)).
func ReadPayload(r io.Reader, h Header, limit uint32) ([]byte, error) {
	if h.Length == 0 {
		return nil, nil
	}
	if limit > 0 && h.Length > limit {
		return nil, ErrPayloadTooBig
	}
	buf := make([]byte, h.Length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrShortPayload
	}
	return buf, nil
}

// WriteFrame serializes and writes a complete frame (header then payload)
// to w in a single pair of writes. Callers are responsible for holding
// whatever write lock guards w against interleaving with other frames.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	h.Length = uint32(len(payload))
	if _, err := w.Write(Encode(h)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
