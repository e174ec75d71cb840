// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corkboard-foundation/corkboard/lib/netutil"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

const (
	// watchWriteTimeout bounds one frame write to a watch client.
	watchWriteTimeout = 10 * time.Second

	// watchPingInterval keeps idle watch connections alive through
	// proxies and detects dead clients.
	watchPingInterval = 30 * time.Second
)

// latestSnapshot holds the newest snapshot not yet written to a watch
// client. A slow client skips intermediate snapshots rather than
// stalling the presence observer.
type latestSnapshot struct {
	mu       sync.Mutex
	snapshot presence.Snapshot
	pending  bool
	ready    chan struct{}
}

func newLatestSnapshot() *latestSnapshot {
	return &latestSnapshot{ready: make(chan struct{}, 1)}
}

func (l *latestSnapshot) store(snapshot presence.Snapshot) {
	l.mu.Lock()
	l.snapshot = snapshot
	l.pending = true
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latestSnapshot) take() (presence.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending {
		return presence.Snapshot{}, false
	}
	l.pending = false
	return l.snapshot, true
}

// handleWatch upgrades to a websocket and streams a PresenceResponse
// for the requested facet after every change to the document's remote
// presence, starting with the current state. The client sends nothing;
// closing the connection ends the stream.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	facet := facetParam(r)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sendError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	s.streams.Add(1)
	s.mu.Unlock()
	defer s.streams.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		s.logger.Debug("watch upgrade failed", "document", id, "error", err)
		return
	}
	defer conn.Close()

	latest := newLatestSnapshot()
	observation, err := s.presence.Observe(id, latest.store)
	if err != nil {
		s.logger.Warn("watch observe failed", "document", id, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(watchWriteTimeout))
		return
	}
	defer observation.Close()

	s.logger.Debug("watch started", "document", id, "facet", facet)

	// The read loop only notices the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingInterval) //nolint:realclock // websocket keepalive
	defer ping.Stop()

	for {
		select {
		case <-latest.ready:
			snapshot, ok := latest.take()
			if !ok {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)) //nolint:realclock // kernel I/O deadline
			if err := conn.WriteJSON(presenceResponse(id, facet, snapshot.Facet(facet))); err != nil {
				s.logWatchEnd(id, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
				s.logWatchEnd(id, err)
				return
			}
		case <-gone:
			s.logger.Debug("watch client left", "document", id)
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) logWatchEnd(id ref.DocumentID, err error) {
	if netutil.IsExpectedCloseError(err) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("watch client left", "document", id)
		return
	}
	s.logger.Warn("watch write failed", "document", id, "error", err)
}
