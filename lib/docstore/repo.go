// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/corkboard-foundation/corkboard/lib/clock"
	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/serial"
	"github.com/corkboard-foundation/corkboard/transport"
)

// RepoConfig configures a Repo.
type RepoConfig struct {
	// Device authors local changes. Required.
	Device ref.DeviceID

	// Snapshots defaults to an empty MemorySnapshots.
	Snapshots Snapshots

	// Changes carries replication traffic. Nil keeps the repo local.
	Changes transport.Messenger

	// Ephemeral is the per-document message channel exposed by
	// Repo.Message and Repo.Subscribe. Nil makes both fail.
	Ephemeral transport.Messenger

	Clock  clock.Clock
	Logger *slog.Logger
}

// Repo holds the documents this device has opened. It is safe for
// concurrent use.
//
// Repo implements transport.Messenger over the ephemeral channel, so a
// presence manager can be layered directly on top of it. Closing the
// repo closes neither messenger.
type Repo struct {
	device    ref.DeviceID
	snapshots Snapshots
	changes   transport.Messenger
	ephemeral transport.Messenger
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	records map[ref.DocumentID]*record
	closed  bool
}

// record is the in-memory state of one document.
type record struct {
	id ref.DocumentID

	// loading is closed once the snapshot load finished; loadErr is
	// its outcome.
	loading chan struct{}
	loadErr error

	mu           sync.Mutex
	doc          Doc
	version      version
	handles      int
	observers    map[uint64]func(Doc)
	nextObserver uint64
	subscription transport.Subscription

	// dispatch orders observer notifications and outgoing updates.
	dispatch serial.Queue
}

// NewRepo validates config and returns an empty Repo.
func NewRepo(config RepoConfig) (*Repo, error) {
	if config.Device.IsZero() {
		return nil, errors.New("docstore: RepoConfig.Device is required")
	}
	if config.Snapshots == nil {
		config.Snapshots = NewMemorySnapshots()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Repo{
		device:    config.Device,
		snapshots: config.Snapshots,
		changes:   config.Changes,
		ephemeral: config.Ephemeral,
		clock:     config.Clock,
		logger:    config.Logger,
		records:   make(map[ref.DocumentID]*record),
	}, nil
}

// Device returns the device that authors this repo's changes.
func (r *Repo) Device() ref.DeviceID { return r.device }

// Create stores initial as a new document and returns its ID. The ID
// is derived from a random genesis record, so two devices creating
// documents at once never collide.
func (r *Repo) Create(ctx context.Context, initial Doc) (ref.DocumentID, error) {
	if r.isClosed() {
		return ref.DocumentID{}, ErrClosed
	}
	if initial == nil {
		initial = Doc{}
	}
	doc, err := codec.Clone(initial)
	if err != nil {
		return ref.DocumentID{}, fmt.Errorf("docstore: initial document is not serializable: %w", err)
	}
	genesis, err := codec.Marshal(struct {
		Device ref.DeviceID `cbor:"device"`
		Nonce  string       `cbor:"nonce"`
	}{r.device, uuid.NewString()})
	if err != nil {
		return ref.DocumentID{}, err
	}
	id := ref.NewDocumentID(genesis)

	snapshot := Snapshot{Document: id, Clock: 1, Author: r.device, Doc: doc, Saved: r.clock.Now()}
	if err := r.snapshots.Save(ctx, snapshot); err != nil {
		return ref.DocumentID{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ref.DocumentID{}, ErrClosed
	}
	loading := make(chan struct{})
	close(loading)
	r.records[id] = &record{
		id:        id,
		loading:   loading,
		doc:       doc,
		version:   version{Clock: 1, Author: r.device},
		observers: make(map[uint64]func(Doc)),
	}
	r.mu.Unlock()

	r.logger.Info("document created", "document", id)
	return id, nil
}

// Open returns an open Handle on id, loading the document from
// snapshots on first use. A document nobody here has seen opens empty
// and fills in as peers answer. Every Handle must be released.
func (r *Repo) Open(ctx context.Context, id ref.DocumentID) (*Handle, error) {
	if id.IsZero() {
		return nil, errors.New("docstore: open of the zero document")
	}
	rec, err := r.record(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	rec.handles++
	first := rec.handles == 1
	if first && r.changes != nil {
		subscription, err := r.changes.Subscribe(id, func(payload []byte) { r.receive(rec, payload) })
		if err != nil {
			rec.handles--
			rec.mu.Unlock()
			return nil, fmt.Errorf("docstore: subscribing to changes of %s: %w", id, err)
		}
		rec.subscription = subscription
		have := rec.version
		if have.Author.IsZero() {
			have.Author = r.device
		}
		r.sendLocked(rec, update{Document: id, Want: true, Clock: have.Clock, Author: have.Author})
	}
	rec.mu.Unlock()
	rec.dispatch.Run()

	r.logger.Debug("document opened", "document", id)
	return &Handle{repo: r, record: rec, state: StateOpen, observers: make(map[uint64]struct{})}, nil
}

// record returns id's record, loading it if needed. Concurrent callers
// for the same id share one load.
func (r *Repo) record(ctx context.Context, id ref.DocumentID) (*record, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	rec, ok := r.records[id]
	if !ok {
		rec = &record{id: id, loading: make(chan struct{}), observers: make(map[uint64]func(Doc))}
		r.records[id] = rec
	}
	r.mu.Unlock()

	if !ok {
		snapshot, err := r.snapshots.Load(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			rec.doc = Doc{}
		case err != nil:
			rec.loadErr = err
			r.mu.Lock()
			delete(r.records, id)
			r.mu.Unlock()
		default:
			rec.doc = snapshot.Doc
			rec.version = version{Clock: snapshot.Clock, Author: snapshot.Author}
		}
		close(rec.loading)
	}

	select {
	case <-rec.loading:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if rec.loadErr != nil {
		return nil, rec.loadErr
	}
	return rec, nil
}

// release drops one handle on rec. The last one stops replication;
// the document stays cached.
func (r *Repo) release(rec *record) {
	rec.mu.Lock()
	rec.handles--
	if rec.handles == 0 && rec.subscription != nil {
		rec.subscription.Unsubscribe()
		rec.subscription = nil
	}
	rec.mu.Unlock()
	r.logger.Debug("document released", "document", rec.id)
}

// change applies mutate to rec and persists, notifies and replicates
// the result.
func (r *Repo) change(rec *record, mutate func(Doc) error) (Doc, error) {
	rec.mu.Lock()
	working, err := codec.Clone(rec.doc)
	if err != nil {
		rec.mu.Unlock()
		return nil, err
	}
	if err := mutate(working); err != nil {
		rec.mu.Unlock()
		return nil, err
	}
	// Round-trip once more so the committed state holds only what the
	// codec can carry, exactly as replicas will see it.
	committed, err := codec.Clone(working)
	if err != nil {
		rec.mu.Unlock()
		return nil, fmt.Errorf("docstore: changed document is not serializable: %w", err)
	}
	next := version{Clock: rec.version.Clock + 1, Author: r.device}
	snapshot := Snapshot{Document: rec.id, Clock: next.Clock, Author: next.Author, Doc: committed, Saved: r.clock.Now()}
	if err := r.snapshots.Save(context.Background(), snapshot); err != nil {
		rec.mu.Unlock()
		return nil, err
	}
	rec.doc, rec.version = committed, next
	r.notifyLocked(rec)
	r.sendLocked(rec, update{Document: rec.id, Clock: next.Clock, Author: next.Author, Doc: committed})
	result, _ := codec.Clone(committed)
	rec.mu.Unlock()
	rec.dispatch.Run()
	return result, nil
}

// notifyLocked queues a copy of rec's document for every observer.
func (r *Repo) notifyLocked(rec *record) {
	if len(rec.observers) == 0 {
		return
	}
	doc := rec.doc
	observers := make([]func(Doc), 0, len(rec.observers))
	for _, observer := range rec.observers {
		observers = append(observers, observer)
	}
	rec.dispatch.Push(func() {
		for _, observer := range observers {
			copied, err := codec.Clone(doc)
			if err != nil {
				r.logger.Error("copying document for observer failed", "document", rec.id, "error", err)
				return
			}
			observer(copied)
		}
	})
}

// sendLocked queues u on the replication channel.
func (r *Repo) sendLocked(rec *record, u update) {
	if r.changes == nil {
		return
	}
	payload, err := codec.Marshal(u)
	if err != nil {
		r.logger.Error("encoding replication message failed", "document", rec.id, "error", err)
		return
	}
	rec.dispatch.Push(func() {
		if err := r.changes.Message(context.Background(), rec.id, payload); err != nil {
			r.logger.Debug("replication send failed", "document", rec.id, "error", err)
		}
	})
}

// receive applies one replication message for rec.
func (r *Repo) receive(rec *record, payload []byte) {
	u, err := decodeUpdate(payload)
	if err != nil || u.Document != rec.id {
		r.logger.Debug("dropping malformed replication message", "document", rec.id, "error", err)
		return
	}

	rec.mu.Lock()
	switch {
	case u.Want:
		// Answer only with something the asker does not have.
		if rec.version.Clock > 0 && rec.version.newer(u.version()) {
			r.sendLocked(rec, update{Document: rec.id, Clock: rec.version.Clock, Author: rec.version.Author, Doc: rec.doc})
		}
	case u.version().newer(rec.version):
		snapshot := Snapshot{Document: rec.id, Clock: u.Clock, Author: u.Author, Doc: u.Doc, Saved: r.clock.Now()}
		if snapshot.Doc == nil {
			snapshot.Doc = Doc{}
		}
		if err := r.snapshots.Save(context.Background(), snapshot); err != nil {
			r.logger.Error("persisting replicated document failed", "document", rec.id, "error", err)
			break
		}
		rec.doc, rec.version = snapshot.Doc, u.version()
		r.notifyLocked(rec)
		r.logger.Debug("applied remote change", "document", rec.id, "clock", u.Clock, "author", u.Author)
	default:
		r.logger.Debug("ignoring stale remote change", "document", rec.id, "clock", u.Clock, "author", u.Author)
	}
	rec.mu.Unlock()
	rec.dispatch.Run()
}

// Documents returns every document the snapshot store holds.
func (r *Repo) Documents(ctx context.Context) ([]ref.DocumentID, error) {
	return r.snapshots.List(ctx)
}

// Message sends payload to doc's peers on the ephemeral channel.
func (r *Repo) Message(ctx context.Context, doc ref.DocumentID, payload []byte) error {
	if r.ephemeral == nil {
		return errors.New("docstore: repo has no ephemeral channel")
	}
	if r.isClosed() {
		return ErrClosed
	}
	return r.ephemeral.Message(ctx, doc, payload)
}

// Subscribe registers handler for doc's ephemeral messages.
func (r *Repo) Subscribe(doc ref.DocumentID, handler transport.Handler) (transport.Subscription, error) {
	if r.ephemeral == nil {
		return nil, errors.New("docstore: repo has no ephemeral channel")
	}
	if r.isClosed() {
		return nil, ErrClosed
	}
	return r.ephemeral.Subscribe(doc, handler)
}

func (r *Repo) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops replication for every document. Handles still open
// report ErrClosed from Change.
func (r *Repo) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	records := r.records
	r.records = make(map[ref.DocumentID]*record)
	r.mu.Unlock()

	for _, rec := range records {
		rec.mu.Lock()
		if rec.subscription != nil {
			rec.subscription.Unsubscribe()
			rec.subscription = nil
		}
		rec.mu.Unlock()
	}
	r.logger.Info("repo closed", "documents", len(records))
	return nil
}

var _ transport.Messenger = (*Repo)(nil)
