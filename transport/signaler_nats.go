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

	"github.com/nats-io/nats.go"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Compile-time interface check.
var _ Signaler = (*NATSSignaler)(nil)

// NATSSignaler exchanges session descriptions over NATS subjects
// "<prefix>.signal.<device>.offer" and ".answer". Core NATS does not
// retain messages, so a signal published before the target subscribed
// is lost; the offerer's answer timeout covers that case by retrying.
type NATSSignaler struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger

	mu            sync.Mutex
	offers        map[ref.DeviceID][]SignalMessage
	answers       map[ref.DeviceID][]SignalMessage
	subscriptions map[ref.DeviceID][]*nats.Subscription
}

// NewNATSSignaler returns a signaler on conn. An empty prefix means
// DefaultSubjectPrefix.
func NewNATSSignaler(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSSignaler {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NATSSignaler{
		conn:          conn,
		prefix:        prefix,
		logger:        logger,
		offers:        make(map[ref.DeviceID][]SignalMessage),
		answers:       make(map[ref.DeviceID][]SignalMessage),
		subscriptions: make(map[ref.DeviceID][]*nats.Subscription),
	}
}

func (s *NATSSignaler) subject(device ref.DeviceID, kind string) string {
	return s.prefix + ".signal." + device.String() + "." + kind
}

// Listen subscribes to signals addressed to device. Poll calls for a
// device subscribe implicitly; calling Listen early avoids losing the
// first offer.
func (s *NATSSignaler) Listen(device ref.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[device]; ok {
		return nil
	}

	var subscriptions []*nats.Subscription
	for kind, store := range map[string]map[ref.DeviceID][]SignalMessage{"offer": s.offers, "answer": s.answers} {
		subscription, err := s.conn.Subscribe(s.subject(device, kind), func(msg *nats.Msg) {
			var message SignalMessage
			if err := codec.Unmarshal(msg.Data, &message); err != nil || message.Peer.IsZero() {
				s.logger.Debug("dropping malformed signal", "subject", msg.Subject, "error", err)
				return
			}
			s.mu.Lock()
			store[device] = append(store[device], message)
			s.mu.Unlock()
		})
		if err != nil {
			for _, existing := range subscriptions {
				existing.Unsubscribe()
			}
			return fmt.Errorf("subscribing to %s signals for %s: %w", kind, device, err)
		}
		subscriptions = append(subscriptions, subscription)
	}
	s.subscriptions[device] = subscriptions
	return nil
}

func (s *NATSSignaler) publish(subject string, message SignalMessage) error {
	data, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding signal: %w", err)
	}
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing signal to %s: %w", subject, err)
	}
	return nil
}

func (s *NATSSignaler) PublishOffer(_ context.Context, device, target ref.DeviceID, sdp string) error {
	return s.publish(s.subject(target, "offer"), SignalMessage{Peer: device, SDP: sdp, Timestamp: time.Now()})
}

func (s *NATSSignaler) PublishAnswer(_ context.Context, offerer, device ref.DeviceID, sdp string) error {
	return s.publish(s.subject(offerer, "answer"), SignalMessage{Peer: device, SDP: sdp, Timestamp: time.Now()})
}

func (s *NATSSignaler) PollOffers(_ context.Context, device ref.DeviceID) ([]SignalMessage, error) {
	return s.drain(device, s.offers)
}

func (s *NATSSignaler) PollAnswers(_ context.Context, device ref.DeviceID) ([]SignalMessage, error) {
	return s.drain(device, s.answers)
}

func (s *NATSSignaler) drain(device ref.DeviceID, store map[ref.DeviceID][]SignalMessage) ([]SignalMessage, error) {
	if err := s.Listen(device); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := store[device]
	delete(store, device)
	return messages, nil
}

// Close unsubscribes every device. The connection stays open.
func (s *NATSSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for device, subscriptions := range s.subscriptions {
		for _, subscription := range subscriptions {
			if err := subscription.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, err)
			}
		}
		delete(s.subscriptions, device)
	}
	return errors.Join(errs...)
}
