// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Compile-time interface check.
var _ Messenger = (*NATSMessenger)(nil)

// DefaultSubjectPrefix roots every Corkboard subject.
const DefaultSubjectPrefix = "corkboard"

// NATSConfig configures a NATSMessenger.
type NATSConfig struct {
	// Conn is an established connection. The messenger does not close
	// it: several messengers (one per channel) usually share one
	// connection.
	Conn *nats.Conn

	// Device is the local device. Envelopes from it are dropped on
	// receipt, since the broker echoes a publisher's own messages.
	Device ref.DeviceID

	// Channel separates traffic classes; see ChannelPresence.
	Channel string

	// SubjectPrefix defaults to DefaultSubjectPrefix.
	SubjectPrefix string

	Logger *slog.Logger
}

// NATSMessenger publishes document messages on NATS core subjects
// "<prefix>.<channel>.<document>". Core NATS is fire-and-forget, which
// is exactly the delivery the presence protocol expects.
type NATSMessenger struct {
	conn    *nats.Conn
	device  ref.DeviceID
	channel string
	prefix  string
	logger  *slog.Logger

	mu            sync.Mutex
	closed        bool
	subscriptions map[*natsSubscription]struct{}
}

// NewNATSMessenger validates config and returns a messenger.
func NewNATSMessenger(config NATSConfig) (*NATSMessenger, error) {
	if config.Conn == nil {
		return nil, errors.New("transport: NATSConfig.Conn is required")
	}
	if config.Device.IsZero() {
		return nil, errors.New("transport: NATSConfig.Device is required")
	}
	if config.Channel == "" || strings.ContainsAny(config.Channel, ".*> ") {
		return nil, fmt.Errorf("transport: invalid NATS channel %q", config.Channel)
	}
	prefix := config.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NATSMessenger{
		conn:          config.Conn,
		device:        config.Device,
		channel:       config.Channel,
		prefix:        prefix,
		logger:        logger,
		subscriptions: make(map[*natsSubscription]struct{}),
	}, nil
}

// Subject returns the subject carrying doc on this messenger's channel.
func (m *NATSMessenger) Subject(doc ref.DocumentID) string {
	return m.prefix + "." + m.channel + "." + doc.String()
}

// Message publishes payload to doc's subject. It returns after the
// client has buffered the message, without a server round trip.
func (m *NATSMessenger) Message(_ context.Context, doc ref.DocumentID, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := encodeEnvelope(envelope{
		Sender:   m.device,
		Channel:  m.channel,
		Document: doc,
		Payload:  payload,
	})
	if err != nil {
		return err
	}
	if err := m.conn.Publish(m.Subject(doc), data); err != nil {
		return fmt.Errorf("publishing to %s: %w", m.Subject(doc), err)
	}
	return nil
}

// Subscribe subscribes to doc's subject. handler runs on the NATS
// client's per-subscription goroutine.
func (m *NATSMessenger) Subscribe(doc ref.DocumentID, handler Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	subject := m.Subject(doc)
	inner, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		e, err := decodeEnvelope(msg.Data)
		if err != nil {
			m.logger.Debug("dropping malformed NATS envelope", "subject", msg.Subject, "error", err)
			return
		}
		if e.Sender == m.device || e.Document != doc || e.Channel != m.channel {
			return
		}
		handler(e.Payload)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	subscription := &natsSubscription{messenger: m, inner: inner}
	m.subscriptions[subscription] = struct{}{}
	return subscription, nil
}

// Close unsubscribes every subscription. The connection stays open.
func (m *NATSMessenger) Close() error {
	m.mu.Lock()
	m.closed = true
	subscriptions := make([]*natsSubscription, 0, len(m.subscriptions))
	for s := range m.subscriptions {
		subscriptions = append(subscriptions, s)
	}
	m.mu.Unlock()

	for _, s := range subscriptions {
		s.Unsubscribe()
	}
	return nil
}

type natsSubscription struct {
	messenger *NATSMessenger
	inner     *nats.Subscription
	once      sync.Once
}

func (s *natsSubscription) Unsubscribe() {
	s.once.Do(func() {
		if err := s.inner.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			s.messenger.logger.Debug("NATS unsubscribe failed", "subject", s.inner.Subject, "error", err)
		}
		s.messenger.mu.Lock()
		delete(s.messenger.subscriptions, s)
		s.messenger.mu.Unlock()
	})
}
