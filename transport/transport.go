// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"net/http"
)

// Listener accepts inbound connections from peer devices and serves
// them with an HTTP handler (PeerNetwork.Handler for message traffic).
type Listener interface {
	// Serve dispatches connections to handler until ctx is cancelled
	// or Close is called. Returns nil on clean shutdown.
	Serve(ctx context.Context, handler http.Handler) error

	// Address returns the address peers dial, in the Dialer's format.
	Address() string

	// Close shuts down the listener. Subsequent calls to Serve return
	// immediately.
	Close() error
}

// Dialer opens connections to peer devices.
type Dialer interface {
	// DialContext connects to a peer at address, in the format the
	// peer's Listener.Address returns.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// HTTPTransport returns an http.RoundTripper that sends every request
// through dialer to address. The host in request URLs is ignored.
func HTTPTransport(dialer Dialer, address string) http.RoundTripper {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, address)
		},
	}
}
