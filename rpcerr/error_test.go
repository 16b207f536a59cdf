package rpcerr

import "testing"

func TestUnknownMethodScenarioBytes(t *testing.T) {
	// §8 scenario 2: exact byte sequence for the unknown-method error.
	e := ErrUnknownMethod()
	buf := Encode(e)

	want := []byte{0x00, 0x00, 0x01, 0x94, 0x00, 0x00, 0x00, 0x0e}
	want = append(want, []byte("Unknown method")...)

	if len(buf) != len(want) {
		t.Fatalf("Encode length = %d, want %d", len(buf), len(want))
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &Error{Code: 42, Message: "boom", Details: []byte{1, 2, 3}}
	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Code != e.Code || got.Message != e.Message || string(got.Details) != string(e.Details) {
		t.Errorf("round trip = %+v, want %+v", got, e)
	}
}

func TestDecodeRejectsTooShort(t *testing.T) {
	if _, err := Decode([]byte{0, 0, 0, 1}); err == nil {
		t.Error("expected error decoding a too-short payload")
	}
}

func TestDecodeRejectsTruncatedMessage(t *testing.T) {
	buf := Encode(&Error{Code: 1, Message: "hello world"})
	if _, err := Decode(buf[:9]); err == nil {
		t.Error("expected error decoding a payload with a truncated message")
	}
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	var err error = New(1, "oops")
	if err.Error() != "oops" {
		t.Errorf("Error() = %q, want %q", err.Error(), "oops")
	}
}
