// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Compile-time interface check.
var _ Messenger = (*peerMessenger)(nil)

// PeerMessagePath is the HTTP route that receives envelopes on a peer's
// Listener.
const PeerMessagePath = "/v1/peer/messages"

// maxEnvelopeSize bounds inbound request bodies.
const maxEnvelopeSize = 1 << 20

// defaultPeerSendTimeout bounds one outbound POST.
const defaultPeerSendTimeout = 2 * time.Second

// PeerNetworkConfig configures a PeerNetwork.
type PeerNetworkConfig struct {
	// Device is the local device, stamped on every outbound envelope.
	Device ref.DeviceID

	// Peers are the transport addresses (host:port for TCPDialer) of
	// the other devices. Every message goes to every peer; peers drop
	// messages for documents they have not subscribed to.
	Peers []string

	// Dialer opens connections to peers. Defaults to a TCPDialer.
	Dialer Dialer

	// SendTimeout bounds each POST. Defaults to two seconds.
	SendTimeout time.Duration

	Logger *slog.Logger
}

// PeerNetwork is a full mesh of HTTP peers over a Listener/Dialer
// pair, for LAN deployments without a broker. Outbound messages are
// POSTed to every configured peer in the background; inbound envelopes
// arrive through Handler, which the caller serves on a Listener.
type PeerNetwork struct {
	device      ref.DeviceID
	sendTimeout time.Duration
	logger      *slog.Logger
	router      *router
	clients     map[string]*http.Client

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in broadcast against wg.Wait in Close.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPeerNetwork returns a PeerNetwork for config.
func NewPeerNetwork(config PeerNetworkConfig) (*PeerNetwork, error) {
	if config.Device.IsZero() {
		return nil, errors.New("transport: PeerNetworkConfig.Device is required")
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = &TCPDialer{Timeout: 5 * time.Second}
	}
	sendTimeout := config.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultPeerSendTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	clients := make(map[string]*http.Client, len(config.Peers))
	for _, address := range config.Peers {
		clients[address] = &http.Client{
			Transport: HTTPTransport(dialer, address),
			Timeout:   sendTimeout,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PeerNetwork{
		device:      config.Device,
		sendTimeout: sendTimeout,
		logger:      logger,
		router:      newRouter(),
		clients:     clients,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Messenger returns the network's Messenger for channel.
func (n *PeerNetwork) Messenger(channel string) Messenger {
	return &peerMessenger{network: n, channel: channel}
}

// Handler returns the HTTP handler that accepts envelopes from peers.
func (n *PeerNetwork) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PeerMessagePath, n.handleMessage)
	return mux
}

func (n *PeerNetwork) handleMessage(writer http.ResponseWriter, request *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, maxEnvelopeSize))
	if err != nil {
		http.Error(writer, "reading envelope: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	e, err := decodeEnvelope(body)
	if err != nil {
		n.logger.Debug("dropping malformed peer envelope", "remote", request.RemoteAddr, "error", err)
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	if e.Sender != n.device {
		n.router.deliver(routeKey{channel: e.Channel, document: e.Document}, e.Payload)
	}
	writer.WriteHeader(http.StatusAccepted)
}

func (n *PeerNetwork) broadcast(e envelope) error {
	data, err := encodeEnvelope(e)
	if err != nil {
		return err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	for address, client := range n.clients {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.post(client, data); err != nil {
				n.logger.Debug("peer send failed",
					"peer", address,
					"document", e.Document,
					"error", err,
				)
			}
		}()
	}
	return nil
}

func (n *PeerNetwork) post(client *http.Client, data []byte) error {
	ctx, cancel := context.WithTimeout(n.ctx, n.sendTimeout)
	defer cancel()

	// The host is ignored: HTTPTransport dials the peer's address.
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://peer"+PeerMessagePath, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/cbor")
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("peer answered %s", response.Status)
	}
	return nil
}

// Close cancels in-flight sends, waits for them, and stops delivery.
func (n *PeerNetwork) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.cancel()
	n.wg.Wait()
	n.router.close()
	for _, client := range n.clients {
		client.CloseIdleConnections()
	}
	return nil
}

type peerMessenger struct {
	network *PeerNetwork
	channel string
}

func (m *peerMessenger) Message(_ context.Context, doc ref.DocumentID, payload []byte) error {
	return m.network.broadcast(envelope{
		Sender:   m.network.device,
		Channel:  m.channel,
		Document: doc,
		Payload:  payload,
	})
}

func (m *peerMessenger) Subscribe(doc ref.DocumentID, handler Handler) (Subscription, error) {
	return m.network.router.subscribe(routeKey{channel: m.channel, document: doc}, handler)
}

// Close is a no-op; the PeerNetwork owns the shared resources.
func (m *peerMessenger) Close() error { return nil }
