package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcregistry"
	"github.com/orbitrpc/urpc/server"
	"github.com/orbitrpc/urpc/transport"
)

func startCLITestServer(t *testing.T, addr string) *server.Server {
	t.Helper()
	reg := rpcregistry.New()
	reg.RegisterName("Example.Echo", func(_ *rpcctx.Context, body []byte) ([]byte, error) {
		return body, nil
	})
	srv := server.NewServer(transport.PlainFactory{}, reg, zerolog.Nop())
	go srv.Serve("tcp", addr)
	time.Sleep(50 * time.Millisecond)
	return srv
}

func captureOutput(t *testing.T, fn func(stdout, stderr *os.File) int) (int, string, string) {
	t.Helper()

	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	code := fn(outW, errW)
	outW.Close()
	errW.Close()

	outBytes, _ := io.ReadAll(outR)
	errBytes, _ := io.ReadAll(errR)
	return code, string(outBytes), string(errBytes)
}

func TestRunPingSucceeds(t *testing.T) {
	addr := "127.0.0.1:19381"
	srv := startCLITestServer(t, addr)
	defer srv.Shutdown(time.Second)

	code, stdout, _ := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"--host", "127.0.0.1", "--port", "19381"}, stdout, stderr)
	})

	if code != exitSuccess {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if stdout != "pong\n" {
		t.Fatalf("expected 'pong', got %q", stdout)
	}
}

func TestRunCallSucceeds(t *testing.T) {
	addr := "127.0.0.1:19382"
	srv := startCLITestServer(t, addr)
	defer srv.Shutdown(time.Second)

	code, stdout, _ := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"--host", "127.0.0.1", "--port", "19382", "--method", "Example.Echo", "--data", "hello"}, stdout, stderr)
	})

	if code != exitSuccess {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if stdout != "hello\n" {
		t.Fatalf("expected 'hello', got %q", stdout)
	}
}

func TestRunMissingPortIsBadArguments(t *testing.T) {
	code, _, stderr := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"--host", "127.0.0.1"}, stdout, stderr)
	})

	if code != exitBadArguments {
		t.Fatalf("expected exit %d, got %d", exitBadArguments, code)
	}
	if stderr == "" {
		t.Fatal("expected a usage message on stderr")
	}
}

func TestRunCallToUnreachableServerFails(t *testing.T) {
	code, _, _ := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"--host", "127.0.0.1", "--port", "1", "--method", "Example.Echo", "--timeout-ms", "200"}, stdout, stderr)
	})

	if code != exitCallTimedOut && code != exitEmptyResponse {
		t.Fatalf("expected a timeout or connection failure exit code, got %d", code)
	}
}
