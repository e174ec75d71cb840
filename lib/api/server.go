// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/version"
)

// maxRequestBodySize bounds document and facet request bodies.
const maxRequestBodySize = 8 << 20

// Config holds configuration for creating a Server.
type Config struct {
	Presence *presence.Manager
	Repo     *docstore.Repo

	// Gatherer backs GET /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer

	// CheckOrigin vets websocket upgrades. Nil accepts same-origin
	// requests and requests without an Origin header.
	CheckOrigin func(*http.Request) bool

	Logger *slog.Logger
}

// Server serves the API. Presence queries need an observation of the
// document; the server starts one on first use and keeps it until
// Close, so the first query of a document may come back empty while
// peers' heartbeats arrive.
type Server struct {
	presence *presence.Manager
	repo     *docstore.Repo
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu           sync.Mutex
	observations map[ref.DocumentID]*presence.Observation
	watches      map[ref.DocumentID]*presence.Session
	streams      sync.WaitGroup
	done         chan struct{}
	closed       bool

	httpServer *http.Server
}

// New creates a Server.
func New(config Config) (*Server, error) {
	if config.Presence == nil {
		return nil, errors.New("api: Config.Presence is required")
	}
	if config.Repo == nil {
		return nil, errors.New("api: Config.Repo is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		presence: config.Presence,
		repo:     config.Repo,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		observations: make(map[ref.DocumentID]*presence.Observation),
		watches:      make(map[ref.DocumentID]*presence.Session),
		done:         make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/identity", s.handleIdentity)
	mux.HandleFunc("POST /v1/documents", s.handleCreateDocument)
	mux.HandleFunc("GET /v1/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /v1/documents/{id}/presence", s.handlePresence)
	mux.HandleFunc("GET /v1/documents/{id}/presence/watch", s.handleWatch)
	mux.HandleFunc("POST /v1/documents/{id}/presence/acquire", s.handleAcquire)
	mux.HandleFunc("POST /v1/documents/{id}/presence/release", s.handleRelease)
	mux.HandleFunc("PUT /v1/documents/{id}/presence/facet", s.handleSetFacet)
	mux.HandleFunc("DELETE /v1/documents/{id}/presence/facet", s.handleClearFacet)
	mux.HandleFunc("GET /v1/contacts/{id}/online", s.handleContactOnline)
	mux.HandleFunc("GET /v1/contacts/{id}/devices", s.handleContactDevices)
	mux.HandleFunc("GET /v1/devices/{id}/online", s.handleDeviceOnline)
	if config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	s.mux = mux

	return s, nil
}

// Handler returns the API's HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve serves the API on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("api server started", "address", listener.Addr().String())
	return server.Serve(listener)
}

// Shutdown stops serving, ends every watch stream and closes the
// server's observations. Presence state held through the API (acquired
// documents, facets) belongs to the Manager and is left alone.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	server := s.httpServer
	observations := s.observations
	watches := s.watches
	s.observations = nil
	s.watches = nil
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	s.streams.Wait()
	for _, observation := range observations {
		observation.Close()
	}
	for _, session := range watches {
		if closeErr := session.Close(); closeErr != nil && !errors.Is(closeErr, presence.ErrClosed) && err == nil {
			err = closeErr
		}
	}
	s.logger.Info("api server stopped")
	return err
}

// observe makes sure doc is observed for the lifetime of the server.
func (s *Server) observe(doc ref.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return http.ErrServerClosed
	}
	if _, ok := s.observations[doc]; ok {
		return nil
	}
	observation, err := s.presence.Observe(doc, nil)
	if err != nil {
		return err
	}
	s.observations[doc] = observation
	return nil
}

// watch makes sure the own document doc of a contact or device is
// watched for online status for the lifetime of the server.
func (s *Server) watch(doc ref.DocumentID, start func() (*presence.Session, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return http.ErrServerClosed
	}
	if _, ok := s.watches[doc]; ok {
		return nil
	}
	session, err := start()
	if err != nil {
		return err
	}
	s.watches[doc] = session
	return nil
}

// writeJSON encodes value as JSON into w, setting the Content-Type
// header. Encoding failures are logged: the client is usually gone.
func (s *Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn("writing JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

// sendFailure maps an operation error onto a status code.
func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	var lifecycle *presence.LifecycleError
	switch {
	case errors.Is(err, presence.ErrOverRelease), errors.As(err, &lifecycle):
		s.sendError(w, http.StatusConflict, "%v", err)
	case errors.Is(err, presence.ErrNoIdentity):
		s.sendError(w, http.StatusConflict, "%v", err)
	case errors.Is(err, presence.ErrClosed), errors.Is(err, docstore.ErrClosed), errors.Is(err, http.ErrServerClosed):
		s.sendError(w, http.StatusServiceUnavailable, "%v", err)
	default:
		s.logger.Error("api request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "%v", err)
	}
}

// documentID parses the {id} path value, answering 400 when it is
// malformed.
func (s *Server) documentID(w http.ResponseWriter, r *http.Request) (ref.DocumentID, bool) {
	id, err := ref.ParseDocumentID(r.PathValue("id"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid document id: %v", err)
		return ref.DocumentID{}, false
	}
	return id, true
}

// facetParam reads ?facet=, defaulting to the root facet.
func facetParam(r *http.Request) ref.FacetKey {
	if facet := r.URL.Query().Get("facet"); facet != "" {
		return ref.FacetKey(facet)
	}
	return ref.FacetRoot
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Info()})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var response IdentityResponse
	if contact, device, ok := s.presence.Identity(); ok {
		response.Contact = &contact
		response.Device = &device
	}
	s.writeJSON(w, http.StatusOK, response)
}
