package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Version:  Version,
		Type:     FrameRequest,
		Flags:    FlagEndStream,
		StreamID: 9,
		MethodID: 0x4A8BD1F0B0AC0F7B,
		Length:   5,
	}

	buf := Encode(h)
	if len(buf) != HeaderSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), HeaderSize)
	}

	got, magic, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if magic != Magic {
		t.Errorf("magic = %x, want %x", magic, Magic)
	}
	if got != h {
		t.Errorf("Decode(Encode(h)) = %+v, want %+v", got, h)
	}
}

func TestValidateHeaderRejectsBadMagicAndVersion(t *testing.T) {
	h := Header{Version: Version, Type: FrameRequest}
	if err := ValidateHeader(0xDEADBEEF, h); err != ErrBadMagic {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
	bad := h
	bad.Version = 2
	if err := ValidateHeader(Magic, bad); err != ErrBadVersion {
		t.Errorf("expected ErrBadVersion, got %v", err)
	}
}

func TestReadHeaderShortRead(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Encode(Header{Version: Version})[:10])
	if _, err := ReadHeader(&buf); err != ErrShortHeader {
		t.Errorf("expected ErrShortHeader, got %v", err)
	}
}

func TestWriteFrameThenReadHeaderAndPayload(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Version: Version, Type: FrameResponse, Flags: FlagEndStream, StreamID: 1, MethodID: 42}
	payload := []byte("hello")
	if err := WriteFrame(&buf, h, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	gotHeader, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if gotHeader.Length != uint32(len(payload)) {
		t.Errorf("Length = %d, want %d", gotHeader.Length, len(payload))
	}

	gotPayload, err := ReadPayload(&buf, gotHeader, 0)
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("payload = %q, want %q", gotPayload, payload)
	}
}

func TestZeroLengthPayloadSkipsRead(t *testing.T) {
	r := bytes.NewReader(nil)
	payload, err := ReadPayload(r, Header{Length: 0}, 0)
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	if payload != nil {
		t.Errorf("expected nil payload for zero length, got %v", payload)
	}
}

func TestReadPayloadEnforcesPolicyLimit(t *testing.T) {
	h := Header{Length: 100}
	_, err := ReadPayload(bytes.NewReader(make([]byte, 100)), h, 10)
	if err != ErrPayloadTooBig {
		t.Errorf("expected ErrPayloadTooBig, got %v", err)
	}
}

func TestUnknownMethodScenarioResponseFlags(t *testing.T) {
	// §8 scenario 2: unknown method response flags.
	h := Header{Version: Version, Type: FrameResponse, Flags: FlagEndStream | FlagError}
	if h.Flags != 0x0003 {
		t.Errorf("flags = %#x, want 0x0003", uint16(h.Flags))
	}
}
