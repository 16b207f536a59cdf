package rpcregistry

import (
	"testing"

	"github.com/orbitrpc/urpc/rpcctx"
)

func echoHandler(_ *rpcctx.Context, body []byte) ([]byte, error) {
	return body, nil
}

func TestRegisterAndFind(t *testing.T) {
	r := New()
	r.Register(1, echoHandler)

	fn, ok := r.Find(1)
	if !ok {
		t.Fatal("expected handler to be found")
	}
	got, err := fn(nil, []byte("hi"))
	if err != nil || string(got) != "hi" {
		t.Errorf("handler returned (%q, %v), want (\"hi\", nil)", got, err)
	}

	if _, ok := r.Find(2); ok {
		t.Error("expected missing sentinel for unregistered id")
	}
}

func TestRegisterNameHashesConsistently(t *testing.T) {
	r := New()
	id1 := r.RegisterName("Example.Echo", echoHandler)
	id2 := r.RegisterName("Example.Echo", echoHandler)
	if id1 != id2 {
		t.Errorf("same name produced different ids: %#x != %#x", id1, id2)
	}
}

func TestReRegisterReplacesHandler(t *testing.T) {
	r := New()
	r.Register(1, func(_ *rpcctx.Context, body []byte) ([]byte, error) { return []byte("first"), nil })
	r.Register(1, func(_ *rpcctx.Context, body []byte) ([]byte, error) { return []byte("second"), nil })

	fn, _ := r.Find(1)
	got, _ := fn(nil, nil)
	if string(got) != "second" {
		t.Errorf("got %q, want %q after re-registration", got, "second")
	}
}

func TestWrapString(t *testing.T) {
	fn := WrapString(func(_ *rpcctx.Context, body []byte) (string, error) {
		return "wrapped:" + string(body), nil
	})
	got, err := fn(nil, []byte("x"))
	if err != nil || string(got) != "wrapped:x" {
		t.Errorf("got (%q, %v)", got, err)
	}
}
