// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corkboard-foundation/corkboard/lib/clock"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/serial"
	"github.com/corkboard-foundation/corkboard/lib/timeout"
	"github.com/corkboard-foundation/corkboard/transport"
)

const (
	// DefaultHeartbeatInterval is how often an open document is
	// re-announced.
	DefaultHeartbeatInterval = time.Second

	// DefaultTTL is how long a remote entry stays live without a
	// heartbeat: five intervals, so one or two lost heartbeats do not
	// make a peer flap.
	DefaultTTL = 5 * time.Second
)

// Config configures a Manager.
type Config struct {
	// Messenger carries presence messages. Required. The Manager does
	// not close it.
	Messenger transport.Messenger

	// Clock defaults to the wall clock.
	Clock clock.Clock

	Logger *slog.Logger

	// HeartbeatInterval defaults to DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// TTL defaults to DefaultTTL and must exceed HeartbeatInterval.
	TTL time.Duration

	// Metrics defaults to an unregistered set.
	Metrics *Metrics
}

// Manager is the process-wide owner of presence state. It is safe for
// concurrent use.
type Manager struct {
	messenger transport.Messenger
	clock     clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	ttl       time.Duration
	metrics   *Metrics
	expiry    *timeout.Registry[entryKey]

	// outbox orders every send. Work is pushed under mu, so a
	// heartbeat that passed its generation check is always sent before
	// the departure that follows it.
	outbox serial.Queue

	mu             sync.Mutex
	contact        ref.ContactID
	device         ref.DeviceID
	open           map[ref.DocumentID]*publication
	local          map[ref.DocumentID]map[ref.FacetKey]any
	caches         map[ref.DocumentID]*cache
	holds          map[facetHold][]facetClaim
	nextGeneration uint64
	closed         bool
}

// publication is the heartbeat state of one open document.
type publication struct {
	count int
	// generation identifies this open period; a heartbeat callback
	// from an earlier period finds it changed and exits.
	generation uint64
	timer      *clock.Timer
}

// NewManager validates config and returns a Manager with no identity.
func NewManager(config Config) (*Manager, error) {
	if config.Messenger == nil {
		return nil, errors.New("presence: Config.Messenger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	if config.HeartbeatInterval < 0 {
		return nil, fmt.Errorf("presence: negative heartbeat interval %s", config.HeartbeatInterval)
	}
	if config.TTL <= config.HeartbeatInterval {
		return nil, fmt.Errorf("presence: TTL %s must exceed heartbeat interval %s", config.TTL, config.HeartbeatInterval)
	}
	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}
	return &Manager{
		messenger: config.Messenger,
		clock:     config.Clock,
		logger:    config.Logger,
		interval:  config.HeartbeatInterval,
		ttl:       config.TTL,
		metrics:   config.Metrics,
		expiry:    timeout.New[entryKey](config.Clock),
		open:      make(map[ref.DocumentID]*publication),
		local:     make(map[ref.DocumentID]map[ref.FacetKey]any),
		caches:    make(map[ref.DocumentID]*cache),
		holds:     make(map[facetHold][]facetClaim),
	}, nil
}

// SetIdentity sets the local contact and device. Until it is called,
// heartbeats and departures are skipped. Changing an established
// identity sends departures under the old one for every open document;
// heartbeats continue under the new one.
func (m *Manager) SetIdentity(contact ref.ContactID, device ref.DeviceID) error {
	if contact.IsZero() || device.IsZero() {
		return errors.New("presence: SetIdentity needs both a contact and a device")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	oldContact, oldDevice := m.contact, m.device
	if oldContact == contact && oldDevice == device {
		m.mu.Unlock()
		return nil
	}
	if !oldDevice.IsZero() {
		for doc := range m.open {
			m.sendLocked(doc, Message{Contact: oldContact, Device: oldDevice, Departing: true}, m.metrics.DeparturesSent)
		}
	}
	m.contact, m.device = contact, device
	m.mu.Unlock()
	m.outbox.Run()

	m.logger.Info("presence identity set", "contact", contact, "device", device)
	return nil
}

// Identity returns the local contact and device, and whether they have
// been set.
func (m *Manager) Identity() (ref.ContactID, ref.DeviceID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contact, m.device, !m.device.IsZero()
}

// identityLocked reports whether the local identity is known.
func (m *Manager) identityLocked() bool {
	return !m.contact.IsZero() && !m.device.IsZero()
}

// sendLocked encodes msg and queues it on the outbox. The caller runs
// the outbox after releasing mu.
func (m *Manager) sendLocked(doc ref.DocumentID, msg Message, sent prometheus.Counter) {
	payload, err := EncodeMessage(msg)
	if err != nil {
		m.logger.Error("encoding presence message failed", "document", doc, "error", err)
		return
	}
	m.outbox.Push(func() {
		if err := m.messenger.Message(context.Background(), doc, payload); err != nil {
			m.logger.Debug("presence send failed", "document", doc, "error", err)
			return
		}
		sent.Inc()
	})
}

// Close sends a departure for every open document, stops every timer
// and unsubscribes from every document. Observations stop receiving.
// Later calls return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true

	for doc, p := range m.open {
		p.timer.Stop()
		if m.identityLocked() {
			m.sendLocked(doc, Message{Contact: m.contact, Device: m.device, Departing: true}, m.metrics.DeparturesSent)
		}
		delete(m.open, doc)
	}
	m.metrics.OpenDocuments.Set(0)

	for doc, c := range m.caches {
		c.shutdownLocked()
		delete(m.caches, doc)
	}
	m.mu.Unlock()

	m.expiry.Stop()
	m.outbox.Run()
	m.logger.Info("presence manager closed")
	return nil
}
