// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts inbound TCP connections from peer devices. It
// needs direct reachability, so it suits a LAN; WebRTCMesh handles NAT
// traversal.
type TCPListener struct {
	listener net.Listener

	// mu guards server, which Serve sets and Close may read from
	// another goroutine.
	mu     sync.Mutex
	server *http.Server
}

// NewTCPListener listens on address (":7946", "10.0.0.5:7946", or
// "127.0.0.1:0" for an ephemeral port).
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener}, nil
}

// Serve starts accepting TCP connections and dispatches to handler.
// Blocks until ctx is cancelled or Close is called.
func (l *TCPListener) Serve(ctx context.Context, handler http.Handler) error {
	// Peers post one small envelope per request, so short timeouts
	// bound a stalled peer without affecting normal traffic.
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	l.mu.Lock()
	l.server = server
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { server.Close() })
	defer stop()

	err := server.Serve(l.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Address returns the TCP address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close shuts down the TCP listener. Before Serve it closes the
// socket directly; after Serve it closes the server, which owns the
// socket and drops open connections.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	server := l.server
	l.mu.Unlock()
	if server != nil {
		return server.Close()
	}
	return l.listener.Close()
}

// TCPDialer opens TCP connections to peer devices. PeerNetwork uses
// one per configured peer address through HTTPTransport.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero leaves only the
	// context deadline.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
