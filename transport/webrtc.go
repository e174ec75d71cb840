// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Compile-time interface check.
var _ Messenger = (*meshMessenger)(nil)

// defaultSignalingPollInterval is how often the mesh polls for offers
// and retries peers it is not connected to.
const defaultSignalingPollInterval = 2 * time.Second

// iceGatherTimeout bounds candidate gathering before the SDP is
// published.
const iceGatherTimeout = 15 * time.Second

// answerTimeout bounds the wait for an answer to a published offer.
const answerTimeout = 30 * time.Second

// meshChannelLabel labels the single data channel per peer.
const meshChannelLabel = "corkboard"

// WebRTCConfig configures a WebRTCMesh.
type WebRTCConfig struct {
	// Device is the local device. It identifies this mesh member in
	// signaling and is stamped on every envelope.
	Device ref.DeviceID

	// Peers are the devices to connect to. The mesh dials the peers
	// whose ID sorts after Device and waits for the others to dial it,
	// so each pair signals exactly once.
	Peers []ref.DeviceID

	Signaler Signaler
	ICE      ICEConfig

	// PollInterval defaults to two seconds.
	PollInterval time.Duration

	Logger *slog.Logger
}

// WebRTCMesh connects devices directly over WebRTC data channels. Each
// pair of devices shares one PeerConnection carrying one unordered data
// channel with retransmission disabled: a late heartbeat is worthless,
// so the channel never holds back newer messages to recover an old
// one.
type WebRTCMesh struct {
	device       ref.DeviceID
	wanted       []ref.DeviceID
	signaler     Signaler
	pollInterval time.Duration
	logger       *slog.Logger
	router       *router

	// configMu guards iceConfig, which UpdateICEConfig may replace
	// while connections are being established.
	configMu  sync.RWMutex
	iceConfig ICEConfig

	mu    sync.Mutex
	peers map[ref.DeviceID]*meshPeer

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// meshPeer is the connection to one remote device. Fields other than
// device and established are guarded by WebRTCMesh.mu.
type meshPeer struct {
	device      ref.DeviceID
	connection  *webrtc.PeerConnection
	channel     *webrtc.DataChannel
	established chan struct{} // closed when the data channel opens
	openOnce    sync.Once
}

// NewWebRTCMesh returns a mesh for config. Call Start to begin
// signaling.
func NewWebRTCMesh(config WebRTCConfig) (*WebRTCMesh, error) {
	if config.Device.IsZero() {
		return nil, errors.New("transport: WebRTCConfig.Device is required")
	}
	if config.Signaler == nil {
		return nil, errors.New("transport: WebRTCConfig.Signaler is required")
	}
	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultSignalingPollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebRTCMesh{
		device:       config.Device,
		wanted:       append([]ref.DeviceID(nil), config.Peers...),
		signaler:     config.Signaler,
		pollInterval: pollInterval,
		logger:       logger,
		router:       newRouter(),
		iceConfig:    config.ICE,
		peers:        make(map[ref.DeviceID]*meshPeer),
		ready:        make(chan struct{}),
		closed:       make(chan struct{}),
	}, nil
}

// Messenger returns the mesh's Messenger for channel.
func (m *WebRTCMesh) Messenger(channel string) Messenger {
	return &meshMessenger{mesh: m, channel: channel}
}

// Start launches the signaling loop. It returns immediately; the loop
// runs until ctx is cancelled or Close is called.
func (m *WebRTCMesh) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.signalingLoop(ctx)
	}()
	m.readyOnce.Do(func() { close(m.ready) })
}

// Ready is closed once Start has launched the signaling loop.
func (m *WebRTCMesh) Ready() <-chan struct{} { return m.ready }

// WaitConnected blocks until the data channel to device is open.
func (m *WebRTCMesh) WaitConnected(ctx context.Context, device ref.DeviceID) error {
	for {
		m.mu.Lock()
		peer := m.peers[device]
		m.mu.Unlock()

		var established <-chan struct{}
		if peer != nil {
			established = peer.established
		}
		select {
		case <-established:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case <-time.After(m.pollInterval):
			// The peer entry may have been replaced; look again.
		}
	}
}

// UpdateICEConfig replaces the ICE servers used for new connections.
func (m *WebRTCMesh) UpdateICEConfig(config ICEConfig) {
	m.configMu.Lock()
	defer m.configMu.Unlock()
	m.iceConfig = config
}

// Close tears down every PeerConnection and stops signaling.
func (m *WebRTCMesh) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	m.wg.Wait()

	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[ref.DeviceID]*meshPeer)
	m.mu.Unlock()

	for _, peer := range peers {
		peer.connection.Close()
	}
	m.router.close()
	return nil
}

func (m *WebRTCMesh) signalingLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.connectMissing(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closed:
			return
		case <-ticker.C:
			m.processInboundOffers(ctx)
			m.connectMissing(ctx)
		}
	}
}

// connectMissing dials every wanted peer this device is responsible
// for offering to and has no live connection with.
func (m *WebRTCMesh) connectMissing(ctx context.Context) {
	for _, target := range m.wanted {
		if target == m.device || target.String() < m.device.String() {
			continue
		}
		peer, created, err := m.claimPeer(target)
		if err != nil {
			m.logger.Warn("creating PeerConnection failed", "peer", target, "error", err)
			continue
		}
		if !created {
			continue
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.establishOutbound(ctx, peer); err != nil {
				m.logger.Info("WebRTC connection attempt failed, will retry", "peer", target, "error", err)
				m.dropPeer(peer)
			}
		}()
	}
}

// claimPeer returns the entry for target, creating one when there is
// none or the existing connection is dead. created is true when the
// caller must establish the new connection.
func (m *WebRTCMesh) claimPeer(target ref.DeviceID) (*meshPeer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.peers[target]; ok {
		if alive(existing.connection) {
			return existing, false, nil
		}
		existing.connection.Close()
		delete(m.peers, target)
	}

	pc, err := m.newPeerConnection()
	if err != nil {
		return nil, false, err
	}
	peer := &meshPeer{device: target, connection: pc, established: make(chan struct{})}
	m.peers[target] = peer
	return peer, true, nil
}

func (m *WebRTCMesh) dropPeer(peer *meshPeer) {
	m.mu.Lock()
	if current, ok := m.peers[peer.device]; ok && current == peer {
		delete(m.peers, peer.device)
	}
	m.mu.Unlock()
	peer.connection.Close()
}

func alive(pc *webrtc.PeerConnection) bool {
	state := pc.ICEConnectionState()
	return state != webrtc.ICEConnectionStateFailed &&
		state != webrtc.ICEConnectionStateClosed &&
		state != webrtc.ICEConnectionStateDisconnected
}

func (m *WebRTCMesh) establishOutbound(ctx context.Context, peer *meshPeer) error {
	pc := peer.connection
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.handleICEStateChange(peer, state)
	})

	ordered := false
	maxRetransmits := uint16(0)
	channel, err := pc.CreateDataChannel(meshChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return fmt.Errorf("creating data channel: %w", err)
	}
	m.attachChannel(peer, channel)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	if err := m.awaitGathering(ctx, gatherComplete); err != nil {
		return err
	}

	if err := m.signaler.PublishOffer(ctx, m.device, peer.device, pc.LocalDescription().SDP); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	m.logger.Debug("WebRTC offer published", "peer", peer.device)

	answerSDP, err := m.waitForAnswer(ctx, peer.device)
	if err != nil {
		return fmt.Errorf("waiting for SDP answer: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

func (m *WebRTCMesh) awaitGathering(ctx context.Context, gatherComplete <-chan struct{}) error {
	select {
	case <-gatherComplete:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return ErrClosed
	}
}

func (m *WebRTCMesh) waitForAnswer(ctx context.Context, peer ref.DeviceID) (string, error) {
	deadline := time.After(answerTimeout)
	ticker := time.NewTicker(m.pollInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return "", fmt.Errorf("timed out after %s", answerTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-m.closed:
			return "", ErrClosed
		case <-ticker.C:
			answers, err := m.signaler.PollAnswers(ctx, m.device)
			if err != nil {
				m.logger.Warn("polling for SDP answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.Peer == peer {
					return answer.SDP, nil
				}
			}
		}
	}
}

func (m *WebRTCMesh) processInboundOffers(ctx context.Context) {
	offers, err := m.signaler.PollOffers(ctx, m.device)
	if err != nil {
		m.logger.Warn("polling for SDP offers failed", "error", err)
		return
	}

	for _, offer := range offers {
		m.mu.Lock()
		existing, ok := m.peers[offer.Peer]
		if ok {
			// Glare: both sides offered. The device with the smaller
			// ID is the canonical offerer.
			if alive(existing.connection) && offer.Peer.String() > m.device.String() {
				m.mu.Unlock()
				continue
			}
			existing.connection.Close()
			delete(m.peers, offer.Peer)
		}
		m.mu.Unlock()

		if err := m.answerOffer(ctx, offer); err != nil {
			m.logger.Error("answering WebRTC offer failed", "peer", offer.Peer, "error", err)
		}
	}
}

func (m *WebRTCMesh) answerOffer(ctx context.Context, offer SignalMessage) error {
	pc, err := m.newPeerConnection()
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}
	peer := &meshPeer{device: offer.Peer, connection: pc, established: make(chan struct{})}

	pc.OnDataChannel(func(channel *webrtc.DataChannel) {
		if channel.Label() != meshChannelLabel {
			channel.Close()
			return
		}
		m.attachChannel(peer, channel)
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.handleICEStateChange(peer, state)
	})

	fail := func(err error) error {
		pc.Close()
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return fail(fmt.Errorf("setting remote description: %w", err))
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("creating SDP answer: %w", err))
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("setting local description: %w", err))
	}
	if err := m.awaitGathering(ctx, gatherComplete); err != nil {
		return fail(err)
	}

	m.mu.Lock()
	m.peers[offer.Peer] = peer
	m.mu.Unlock()

	if err := m.signaler.PublishAnswer(ctx, offer.Peer, m.device, pc.LocalDescription().SDP); err != nil {
		m.dropPeer(peer)
		return fmt.Errorf("publishing SDP answer: %w", err)
	}
	m.logger.Debug("WebRTC offer answered", "peer", offer.Peer)
	return nil
}

// attachChannel wires a data channel's open and message callbacks to
// the mesh.
func (m *WebRTCMesh) attachChannel(peer *meshPeer, channel *webrtc.DataChannel) {
	channel.OnOpen(func() {
		m.mu.Lock()
		peer.channel = channel
		m.mu.Unlock()
		peer.openOnce.Do(func() { close(peer.established) })
		m.logger.Info("WebRTC peer connected", "peer", peer.device)
	})
	channel.OnClose(func() {
		m.mu.Lock()
		if peer.channel == channel {
			peer.channel = nil
		}
		m.mu.Unlock()
	})
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		m.handleInbound(peer.device, message.Data)
	})
}

func (m *WebRTCMesh) handleInbound(from ref.DeviceID, data []byte) {
	e, err := decodeEnvelope(data)
	if err != nil {
		m.logger.Debug("dropping malformed WebRTC envelope", "peer", from, "error", err)
		return
	}
	if e.Sender != from {
		m.logger.Debug("dropping envelope with mismatched sender", "peer", from, "sender", e.Sender)
		return
	}
	m.router.deliver(routeKey{channel: e.Channel, document: e.Document}, e.Payload)
}

func (m *WebRTCMesh) handleICEStateChange(peer *meshPeer, state webrtc.ICEConnectionState) {
	m.logger.Debug("ICE state change", "peer", peer.device, "state", state.String())
	switch state {
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		m.mu.Lock()
		if current, ok := m.peers[peer.device]; ok && current == peer {
			delete(m.peers, peer.device)
		}
		m.mu.Unlock()
	}
}

func (m *WebRTCMesh) broadcast(e envelope) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	data, err := encodeEnvelope(e)
	if err != nil {
		return err
	}

	m.mu.Lock()
	channels := make(map[ref.DeviceID]*webrtc.DataChannel, len(m.peers))
	for device, peer := range m.peers {
		if peer.channel != nil {
			channels[device] = peer.channel
		}
	}
	m.mu.Unlock()

	for device, channel := range channels {
		if err := channel.Send(data); err != nil {
			m.logger.Debug("WebRTC send failed", "peer", device, "error", err)
		}
	}
	return nil
}

func (m *WebRTCMesh) newPeerConnection() (*webrtc.PeerConnection, error) {
	m.configMu.RLock()
	config := webrtc.Configuration{ICEServers: m.iceConfig.Servers}
	m.configMu.RUnlock()

	// Loopback candidates let two meshes in one process, or on a host
	// whose only interface is loopback, reach each other.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

type meshMessenger struct {
	mesh    *WebRTCMesh
	channel string
}

func (m *meshMessenger) Message(_ context.Context, doc ref.DocumentID, payload []byte) error {
	return m.mesh.broadcast(envelope{
		Sender:   m.mesh.device,
		Channel:  m.channel,
		Document: doc,
		Payload:  payload,
	})
}

func (m *meshMessenger) Subscribe(doc ref.DocumentID, handler Handler) (Subscription, error) {
	return m.mesh.router.subscribe(routeKey{channel: m.channel, document: doc}, handler)
}

// Close is a no-op; the WebRTCMesh owns the connections.
func (m *meshMessenger) Close() error { return nil }
