// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// onlineStatusPayload is the payload advertised under
// ref.FacetOnlineStatus. Its content is irrelevant; its presence is
// the signal.
func onlineStatusPayload() map[string]any { return map[string]any{} }

// facetHold is one facet of one document that sessions publish under.
type facetHold struct {
	document ref.DocumentID
	facet    ref.FacetKey
}

// facetClaim is one session's payload under a facetHold. Claims are
// kept oldest first and the newest one is the published payload.
type facetClaim struct {
	session *Session
	payload any
}

func withoutClaim(claims []facetClaim, s *Session) []facetClaim {
	return slices.DeleteFunc(claims, func(claim facetClaim) bool { return claim.session == s })
}

// holdFacet publishes payload as s's claim on its facet, making it the
// newest claim.
func (m *Manager) holdFacet(s *Session, payload any) error {
	if s.facet == "" {
		return fmt.Errorf("presence: empty facet for %s", s.document)
	}
	copied, err := codec.Clone(payload)
	if err != nil {
		return fmt.Errorf("presence: facet %q payload is not serializable: %w", s.facet, err)
	}
	key := facetHold{s.document, s.facet}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.holds[key] = append(withoutClaim(m.holds[key], s), facetClaim{session: s, payload: copied})
	m.setLocalLocked(s.document, s.facet, copied)
	m.mu.Unlock()
	m.outbox.Run()
	return nil
}

// dropFacet withdraws s's claim. If s held the newest claim the next
// newest is published again; the facet is cleared with the last claim.
func (m *Manager) dropFacet(s *Session) error {
	key := facetHold{s.document, s.facet}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	claims := m.holds[key]
	newest := len(claims) > 0 && claims[len(claims)-1].session == s
	claims = withoutClaim(claims, s)
	switch {
	case len(claims) == 0:
		delete(m.holds, key)
		m.clearLocalLocked(s.document, s.facet)
	case newest:
		m.holds[key] = claims
		m.setLocalLocked(s.document, s.facet, claims[len(claims)-1].payload)
	default:
		m.holds[key] = claims
	}
	m.mu.Unlock()
	m.outbox.Run()
	return nil
}

// Session bundles what one UI consumer does with a document's
// presence: publish a payload under one facet, observe the peers, and
// optionally hold the document open.
type Session struct {
	manager     *Manager
	document    ref.DocumentID
	facet       ref.FacetKey
	acquired    bool
	observation *Observation
	closeOnce   sync.Once
	closeErr    error

	mu      sync.Mutex
	holding bool
}

// Join acquires doc, publishes payload under facet and observes the
// document. A nil payload publishes nothing. Close undoes all three.
func (m *Manager) Join(doc ref.DocumentID, facet ref.FacetKey, payload any, observer Observer) (*Session, error) {
	return m.openSession(doc, facet, payload, observer, true)
}

// WatchContact observes contact's own document and advertises the
// onlineStatus facet on it, without holding the document open.
// ContactOnline and OnlineDevices answer from this observation.
func (m *Manager) WatchContact(contact ref.ContactID, observer Observer) (*Session, error) {
	return m.openSession(contact.Document(), ref.FacetOnlineStatus, onlineStatusPayload(), observer, false)
}

// WatchDevice is WatchContact for a device's own document.
func (m *Manager) WatchDevice(device ref.DeviceID, observer Observer) (*Session, error) {
	return m.openSession(device.Document(), ref.FacetOnlineStatus, onlineStatusPayload(), observer, false)
}

func (m *Manager) openSession(doc ref.DocumentID, facet ref.FacetKey, payload any, observer Observer, acquire bool) (*Session, error) {
	s := &Session{manager: m, document: doc, facet: facet}
	if acquire {
		if _, err := m.Acquire(doc); err != nil {
			return nil, err
		}
		s.acquired = true
	}
	if payload != nil {
		if err := m.holdFacet(s, payload); err != nil {
			s.Close()
			return nil, err
		}
		s.holding = true
	}
	observation, err := m.Observe(doc, observer)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.observation = observation
	return s, nil
}

// Document returns the session's document.
func (s *Session) Document() ref.DocumentID { return s.document }

// Update replaces the payload published under the session's facet and
// makes it the one peers see. A nil payload withdraws this session's
// payload; another session's payload for the same facet, if any, takes
// its place.
func (s *Session) Update(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case payload == nil && s.holding:
		s.holding = false
		return s.manager.dropFacet(s)
	case payload == nil:
		return nil
	}
	if err := s.manager.holdFacet(s, payload); err != nil {
		return err
	}
	s.holding = true
	return nil
}

// Presence returns the live peers with their payloads for the
// session's facet.
func (s *Session) Presence() []FacetPresence {
	return s.manager.Current(s.document, s.facet)
}

// Close stops observing, withdraws the session's payload (restoring the
// newest payload another session still publishes under the facet), and releases the document if the
// session acquired it. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.observation != nil {
			s.observation.Close()
		}
		var errs []error
		s.mu.Lock()
		if s.holding {
			s.holding = false
			if err := s.manager.dropFacet(s); err != nil && !errors.Is(err, ErrClosed) {
				errs = append(errs, err)
			}
		}
		s.mu.Unlock()
		if s.acquired {
			if _, err := s.manager.Release(s.document); err != nil && !errors.Is(err, ErrClosed) {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Announcement holds the local contact's and device's documents open
// with the onlineStatus facet set, so that watchers of either see this
// device online.
type Announcement struct {
	sessions []*Session
}

// AnnounceSelf starts an Announcement. The identity must be set.
func (m *Manager) AnnounceSelf() (*Announcement, error) {
	contact, device, ok := m.Identity()
	if !ok {
		return nil, ErrNoIdentity
	}
	announcement := &Announcement{}
	for _, doc := range []ref.DocumentID{contact.Document(), device.Document()} {
		session, err := m.Join(doc, ref.FacetOnlineStatus, onlineStatusPayload(), nil)
		if err != nil {
			announcement.Close()
			return nil, err
		}
		announcement.sessions = append(announcement.sessions, session)
	}
	return announcement, nil
}

// Close ends the announcement, sending departures on both documents.
func (a *Announcement) Close() error {
	var errs []error
	for _, session := range a.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
