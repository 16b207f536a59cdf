package middleware

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcerr"
)

func mwEchoHandler(_ *rpcctx.Context, body []byte) ([]byte, error) {
	return []byte("ok"), nil
}

func mwSlowHandler(_ *rpcctx.Context, body []byte) ([]byte, error) {
	time.Sleep(200 * time.Millisecond)
	return []byte("ok"), nil
}

func TestLoggingPassesThrough(t *testing.T) {
	handler := Logging(zerolog.Nop())(mwEchoHandler)
	resp, err := handler(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "ok" {
		t.Fatalf("expected 'ok', got %q", resp)
	}
}

func TestTimeoutPassesWhenFast(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(mwEchoHandler)
	resp, err := handler(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "ok" {
		t.Fatalf("expected 'ok', got %q", resp)
	}
}

func TestTimeoutFiresWhenSlow(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(mwSlowHandler)
	_, err := handler(nil, nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	rpcErr, ok := err.(*rpcerr.Error)
	if !ok || rpcErr.Code != 504 {
		t.Fatalf("expected rpcerr with code 504, got %v", err)
	}
}

func TestRateLimitAllowsBurstThenRejects(t *testing.T) {
	handler := RateLimit(1, 2)(mwEchoHandler)

	for i := 0; i < 2; i++ {
		if _, err := handler(nil, nil); err != nil {
			t.Fatalf("request %d should pass, got: %v", i, err)
		}
	}

	if _, err := handler(nil, nil); err == nil {
		t.Fatal("expected third request to be rate limited")
	}
}

func TestChainAppliesInOrder(t *testing.T) {
	chained := Chain(Logging(zerolog.Nop()), Timeout(500*time.Millisecond))
	handler := chained(mwEchoHandler)

	resp, err := handler(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "ok" {
		t.Fatalf("expected 'ok', got %q", resp)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	handler := Retry(3, time.Millisecond, zerolog.Nop())(func(_ *rpcctx.Context, _ []byte) ([]byte, error) {
		calls++
		return nil, rpcerr.New(400, "bad request")
	})

	if _, err := handler(nil, nil); err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for a non-retryable error, got %d", calls)
	}
}

func TestRetryRetriesOnServerError(t *testing.T) {
	calls := 0
	handler := Retry(2, time.Millisecond, zerolog.Nop())(func(_ *rpcctx.Context, _ []byte) ([]byte, error) {
		calls++
		if calls < 2 {
			return nil, rpcerr.New(503, "downstream unavailable")
		}
		return []byte("ok"), nil
	})

	resp, err := handler(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "ok" || calls != 2 {
		t.Errorf("resp=%q calls=%d, want \"ok\", 2", resp, calls)
	}
}
