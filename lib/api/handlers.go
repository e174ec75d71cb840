// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/corkboard-foundation/corkboard/lib/importer"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "request body too large (max %d bytes)", maxRequestBodySize)
			return
		}
		s.sendError(w, http.StatusBadRequest, "reading request body: %v", err)
		return
	}
	doc, err := importer.Parse(body)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "%v", err)
		return
	}

	id, err := s.repo.Create(r.Context(), doc)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, CreateResponse{Document: id})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	handle, err := s.repo.Open(r.Context(), id)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	defer handle.Release()

	doc, err := handle.Doc()
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DocumentResponse{Document: id, Content: doc})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	if err := s.observe(id); err != nil {
		s.sendFailure(w, err)
		return
	}
	facet := facetParam(r)
	s.writeJSON(w, http.StatusOK, presenceResponse(id, facet, s.presence.Current(id, facet)))
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	count, err := s.presence.Acquire(id)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	if err := s.observe(id); err != nil {
		s.sendFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CountResponse{Document: id, Count: count})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	count, err := s.presence.Release(id)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CountResponse{Document: id, Count: count})
}

func (s *Server) handleSetFacet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	facet := facetParam(r)

	var payload any
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := decoder.Decode(&payload); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid payload: %v", err)
		return
	}
	if payload == nil {
		s.sendError(w, http.StatusBadRequest, "payload is null; use DELETE to clear a facet")
		return
	}
	if err := s.presence.SetLocal(id, facet, payload); err != nil {
		s.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearFacet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	if err := s.presence.ClearLocal(id, facetParam(r)); err != nil {
		s.sendFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) contactID(w http.ResponseWriter, r *http.Request) (ref.ContactID, bool) {
	contact, err := ref.ParseContactID(r.PathValue("id"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid contact id: %v", err)
		return ref.ContactID{}, false
	}
	return contact, true
}

func (s *Server) watchContact(contact ref.ContactID) error {
	return s.watch(contact.Document(), func() (*presence.Session, error) {
		return s.presence.WatchContact(contact, nil)
	})
}

func (s *Server) handleContactOnline(w http.ResponseWriter, r *http.Request) {
	contact, ok := s.contactID(w, r)
	if !ok {
		return
	}
	if err := s.watchContact(contact); err != nil {
		s.sendFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OnlineResponse{Online: s.presence.ContactOnline(contact)})
}

func (s *Server) handleContactDevices(w http.ResponseWriter, r *http.Request) {
	contact, ok := s.contactID(w, r)
	if !ok {
		return
	}
	if err := s.watchContact(contact); err != nil {
		s.sendFailure(w, err)
		return
	}
	devices := s.presence.OnlineDevices(contact)
	if devices == nil {
		devices = []ref.DeviceID{}
	}
	s.writeJSON(w, http.StatusOK, DevicesResponse{Contact: contact, Devices: devices})
}

func (s *Server) handleDeviceOnline(w http.ResponseWriter, r *http.Request) {
	device, err := ref.ParseDeviceID(r.PathValue("id"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid device id: %v", err)
		return
	}
	err = s.watch(device.Document(), func() (*presence.Session, error) {
		return s.presence.WatchDevice(device, nil)
	})
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OnlineResponse{Online: s.presence.DeviceOnline(device)})
}
