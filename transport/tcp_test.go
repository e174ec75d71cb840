// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// serveTCP starts a TCPListener on an ephemeral loopback port and
// returns an HTTP client whose connections are dialed to it.
func serveTCP(t *testing.T, handler http.Handler) (*TCPListener, *http.Client) {
	t.Helper()
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		listener.Close()
	})
	go listener.Serve(ctx, handler)

	client := &http.Client{
		Transport: HTTPTransport(&TCPDialer{Timeout: time.Second}, listener.Address()),
		Timeout:   5 * time.Second,
	}
	return listener, client
}

func TestTCPListenerCarriesPeerEnvelopes(t *testing.T) {
	var received []byte
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PeerMessagePath, func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	})
	listener, client := serveTCP(t, mux)
	if !strings.HasPrefix(listener.Address(), "127.0.0.1:") {
		t.Fatalf("Address = %q, want a loopback host:port", listener.Address())
	}

	// The URL host is ignored; HTTPTransport always dials the listener.
	response, err := client.Post("http://some-peer"+PeerMessagePath, "application/cbor", strings.NewReader("heartbeat"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", response.StatusCode, http.StatusAccepted)
	}
	if string(received) != "heartbeat" {
		t.Errorf("handler received %q, want %q", received, "heartbeat")
	}
}

func TestTCPListenerStopsOnCancel(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Serve(ctx, http.NotFoundHandler()) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestTCPDialerFailures(t *testing.T) {
	dialer := &TCPDialer{Timeout: time.Second}
	if _, err := dialer.DialContext(context.Background(), "127.0.0.1:1"); err == nil {
		t.Error("dialing a closed port succeeded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dialer.DialContext(ctx, "127.0.0.1:1"); err == nil {
		t.Error("dialing with a cancelled context succeeded")
	}
}
