// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package view binds one UI consumer to one document at a time: an
// open document handle plus a presence session on the same document.
//
// Rebinding to a different document tears the old binding down before
// building the new one, presence first and the handle second, so the
// acquire/release counts seen by the presence manager never include a
// document the view has left.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

var (
	// ErrUnbound is returned by operations that need a bound document.
	ErrUnbound = errors.New("view: not bound to a document")

	// ErrClosed is returned by Bind after Close.
	ErrClosed = errors.New("view: closed")
)

// Config configures a View.
type Config struct {
	Repo     *docstore.Repo
	Presence *presence.Manager

	// Facet is the presence facet the view publishes under. Defaults to
	// ref.FacetRoot.
	Facet ref.FacetKey

	// OnDoc is called with the document's content after every bind and
	// every change. Optional.
	OnDoc func(ref.DocumentID, docstore.Doc)

	// OnPresence is called with the bound document's remote presence
	// after every change to it. Optional.
	OnPresence presence.Observer

	Logger *slog.Logger
}

// View is safe for concurrent use. Its callbacks may read the view but
// must not call Bind or Close.
type View struct {
	config Config
	logger *slog.Logger

	// bindMu serializes Bind and Close; mu guards the fields below.
	bindMu sync.Mutex

	mu       sync.Mutex
	document ref.DocumentID
	handle   *docstore.Handle
	cancel   func()
	session  *presence.Session
	closed   bool
}

// New returns an unbound View. Repo and Presence are required; Facet
// defaults to ref.FacetRoot and a nil Logger discards.
func New(config Config) (*View, error) {
	if config.Repo == nil || config.Presence == nil {
		return nil, errors.New("view: Repo and Presence are required")
	}
	if config.Facet == "" {
		config.Facet = ref.FacetRoot
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &View{config: config, logger: logger}, nil
}

// Bind points the view at id. Binding to the current document does
// nothing. Binding to the zero ID unbinds.
func (v *View) Bind(ctx context.Context, id ref.DocumentID) error {
	v.bindMu.Lock()
	defer v.bindMu.Unlock()

	v.mu.Lock()
	closed, current := v.closed, v.document
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if id == current {
		return nil
	}
	if err := v.unbind(); err != nil {
		return err
	}
	if id.IsZero() {
		return nil
	}

	handle, err := v.config.Repo.Open(ctx, id)
	if err != nil {
		return fmt.Errorf("view: opening %s: %w", id, err)
	}
	session, err := v.config.Presence.Join(id, v.config.Facet, nil, v.config.OnPresence)
	if err != nil {
		handle.Release()
		return fmt.Errorf("view: joining presence on %s: %w", id, err)
	}

	var cancel func()
	if onDoc := v.config.OnDoc; onDoc != nil {
		cancel, err = handle.OnChange(func(doc docstore.Doc) { onDoc(id, doc) })
		if err != nil {
			session.Close()
			handle.Release()
			return err
		}
	}

	v.mu.Lock()
	v.document, v.handle, v.session, v.cancel = id, handle, session, cancel
	v.mu.Unlock()
	v.logger.Debug("view bound", "document", id)

	if v.config.OnDoc != nil {
		if doc, err := handle.Doc(); err == nil {
			v.config.OnDoc(id, doc)
		}
	}
	return nil
}

// unbind releases presence, then the handle. The caller holds bindMu.
func (v *View) unbind() error {
	v.mu.Lock()
	document, handle, session, cancel := v.document, v.handle, v.session, v.cancel
	v.document, v.handle, v.session, v.cancel = ref.DocumentID{}, nil, nil, nil
	v.mu.Unlock()
	if document.IsZero() {
		return nil
	}

	var errs []error
	if cancel != nil {
		cancel()
	}
	if err := session.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := handle.Release(); err != nil {
		errs = append(errs, err)
	}
	v.logger.Debug("view unbound", "document", document)
	return errors.Join(errs...)
}

// Document returns the bound document, or the zero ID.
func (v *View) Document() ref.DocumentID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.document
}

// Doc returns the bound document's content.
func (v *View) Doc() (docstore.Doc, error) {
	handle, err := v.boundHandle()
	if err != nil {
		return nil, err
	}
	return handle.Doc()
}

// Change applies mutate to the bound document.
func (v *View) Change(mutate func(docstore.Doc) error) (docstore.Doc, error) {
	handle, err := v.boundHandle()
	if err != nil {
		return nil, err
	}
	return handle.Change(mutate)
}

// SetPresence publishes payload under the view's facet on the bound
// document. A nil payload withdraws it.
func (v *View) SetPresence(payload any) error {
	v.mu.Lock()
	session := v.session
	v.mu.Unlock()
	if session == nil {
		return ErrUnbound
	}
	return session.Update(payload)
}

// Presence returns the live peers of the bound document with their
// payloads for the view's facet.
func (v *View) Presence() []presence.FacetPresence {
	v.mu.Lock()
	session := v.session
	v.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Presence()
}

// boundHandle returns the open handle, or ErrUnbound.
func (v *View) boundHandle() (*docstore.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handle == nil {
		return nil, ErrUnbound
	}
	return v.handle, nil
}

// Close unbinds the view. It is idempotent.
func (v *View) Close() error {
	v.bindMu.Lock()
	defer v.bindMu.Unlock()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()
	return v.unbind()
}
