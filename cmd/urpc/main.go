// Command urpc is the uRPC command-line front end (§6.4): out of the
// protocol core, documented purely as an external interface. It dials a
// single uRPC server, optionally over TLS/mTLS with application
// encryption, and either pings it or issues one method call.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/client"
	"github.com/orbitrpc/urpc/transport"
)

const (
	exitSuccess          = 0
	exitUsage            = 1
	exitBadArguments     = 2
	exitPingFailed       = 3
	exitEmptyResponse    = 4
	exitConnectTimedOut  = 110
	exitCallTimedOut     = 111
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("urpc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	host := fs.String("host", "127.0.0.1", "server host")
	port := fs.Uint("port", 0, "server port")
	method := fs.String("method", "", "dotted method name to call, e.g. Example.Echo")
	data := fs.String("data", "", "UTF-8 request body")
	useTLS := fs.Bool("tls", false, "connect using TLS")
	tlsNoVerify := fs.Bool("tls-no-verify", false, "skip TLS certificate verification")
	tlsCA := fs.String("tls-ca", "", "PEM CA bundle for server certificate verification")
	tlsCert := fs.String("tls-cert", "", "PEM client certificate (mutual TLS)")
	tlsKey := fs.String("tls-key", "", "PEM client key (mutual TLS)")
	tlsServerName := fs.String("tls-server-name", "", "TLS server name (SNI)")
	timeoutMs := fs.Int("timeout-ms", 5000, "operation timeout in milliseconds")
	useAES := fs.Bool("aes", false, "enable application-layer AES-256-GCM over the TLS exporter key")
	fs.Bool("no-aes", false, "disable application-layer encryption (default)")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *port == 0 || *port > 65535 {
		fmt.Fprintln(stderr, "urpc: --port is required and must be between 1 and 65535")
		return exitBadArguments
	}
	if *useTLS && *tlsServerName == "" && !*tlsNoVerify {
		fmt.Fprintln(stderr, "urpc: --tls-server-name is required with --tls unless --tls-no-verify is set")
		return exitBadArguments
	}

	factory, err := buildFactory(*useTLS, *tlsNoVerify, *tlsCA, *tlsCert, *tlsKey, *tlsServerName)
	if err != nil {
		fmt.Fprintf(stderr, "urpc: %v\n", err)
		return exitBadArguments
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	c := client.New(client.Config{
		Addr:         addr,
		Factory:      factory,
		Logger:       zerolog.New(stderr).With().Timestamp().Logger(),
		UseAppCipher: *useAES,
	})
	defer c.Close()

	timeout := time.Duration(*timeoutMs) * time.Millisecond

	if *method == "" {
		return runPing(c, timeout, stdout, stderr)
	}
	return runCall(c, *method, []byte(*data), timeout, stdout, stderr)
}

func buildFactory(useTLS, noVerify bool, caFile, certFile, keyFile, serverName string) (transport.StreamFactory, error) {
	if !useTLS {
		return transport.PlainFactory{}, nil
	}

	tlsConfig := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: noVerify,
	}

	if caFile != "" {
		pemBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" || keyFile != "" {
		if certFile == "" || keyFile == "" {
			return nil, fmt.Errorf("--tls-cert and --tls-key must be given together")
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return transport.TLSFactory{ClientConfig: tlsConfig, DeriveAppKey: true}, nil
}

func runPing(c *client.Client, timeout time.Duration, stdout, stderr *os.File) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok := c.Ping(ctx)

	if ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintln(stderr, "urpc: ping timed out")
		return exitConnectTimedOut
	}
	if !ok {
		fmt.Fprintln(stderr, "urpc: ping failed")
		return exitPingFailed
	}
	fmt.Fprintln(stdout, "pong")
	return exitSuccess
}

func runCall(c *client.Client, method string, body []byte, timeout time.Duration, stdout, stderr *os.File) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := c.CallName(ctx, method, body)

	if ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintln(stderr, "urpc: call timed out")
		return exitCallTimedOut
	}
	if err != nil {
		fmt.Fprintf(stderr, "urpc: call failed: %v\n", err)
		return exitEmptyResponse
	}
	if len(resp) == 0 {
		fmt.Fprintln(stderr, "urpc: empty response")
		return exitEmptyResponse
	}

	fmt.Fprintln(stdout, string(resp))
	return exitSuccess
}
