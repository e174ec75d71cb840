// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// routeKey addresses the handlers for one document on one channel.
type routeKey struct {
	channel  string
	document ref.DocumentID
}

// router is the local fan-out shared by every Messenger: inbound
// envelopes are matched to handlers by channel and document.
type router struct {
	mu     sync.RWMutex
	nextID uint64
	routes map[routeKey]map[uint64]Handler
	closed bool
}

func newRouter() *router {
	return &router{routes: make(map[routeKey]map[uint64]Handler)}
}

func (r *router) subscribe(key routeKey, handler Handler) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	r.nextID++
	id := r.nextID
	handlers := r.routes[key]
	if handlers == nil {
		handlers = make(map[uint64]Handler)
		r.routes[key] = handlers
	}
	handlers[id] = handler
	return &routeSubscription{router: r, key: key, id: id}, nil
}

func (r *router) unsubscribe(key routeKey, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handlers := r.routes[key]
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(r.routes, key)
	}
}

// subscribed reports whether any handler is registered for key.
func (r *router) subscribed(key routeKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes[key]) > 0
}

// deliver calls every handler for key with its own copy of payload and
// returns how many ran. Handlers run without the router lock held.
func (r *router) deliver(key routeKey, payload []byte) int {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.routes[key]))
	for _, handler := range r.routes[key] {
		handlers = append(handlers, handler)
	}
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler(append([]byte(nil), payload...))
	}
	return len(handlers)
}

func (r *router) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.routes)
}

type routeSubscription struct {
	router *router
	key    routeKey
	id     uint64
	once   sync.Once
}

func (s *routeSubscription) Unsubscribe() {
	s.once.Do(func() { s.router.unsubscribe(s.key, s.id) })
}
