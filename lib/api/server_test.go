// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corkboard-foundation/corkboard/lib/clock"
	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/testutil"
	"github.com/corkboard-foundation/corkboard/transport"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type peer struct {
	contact  ref.ContactID
	device   ref.DeviceID
	repo     *docstore.Repo
	presence *presence.Manager
}

func newPeer(t *testing.T, hub *transport.MemoryHub, fake *clock.FakeClock, name string, registerer prometheus.Registerer) peer {
	t.Helper()
	p := peer{
		contact: ref.ContactFromDocument(ref.NewDocumentID([]byte("contact:" + name))),
		device:  ref.DeviceFromDocument(ref.NewDocumentID([]byte("device:" + name))),
	}
	repo, err := docstore.NewRepo(docstore.RepoConfig{
		Device:    p.device,
		Changes:   hub.Messenger(p.device, transport.ChannelChanges),
		Ephemeral: hub.Messenger(p.device, transport.ChannelPresence),
		Clock:     fake,
		Logger:    testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	manager, err := presence.NewManager(presence.Config{
		Messenger: repo,
		Clock:     fake,
		Logger:    testutil.Logger(t),
		Metrics:   presence.NewMetrics(registerer),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.SetIdentity(p.contact, p.device); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	t.Cleanup(func() {
		manager.Close()
		repo.Close()
	})
	p.repo, p.presence = repo, manager
	return p
}

type fixture struct {
	alice, bob peer
	server     *Server
	http       *httptest.Server
	client     *Client
	registry   *prometheus.Registry
	doc        ref.DocumentID
}

// newFixture serves alice's API; bob is a second peer on the same hub.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := transport.NewMemoryHub()
	fake := clock.Fake(epoch)
	registry := prometheus.NewRegistry()

	f := &fixture{
		alice:    newPeer(t, hub, fake, "alice", registry),
		bob:      newPeer(t, hub, fake, "bob", nil),
		registry: registry,
		doc:      ref.NewDocumentID([]byte(testutil.UniqueID("board"))),
	}
	server, err := New(Config{
		Presence: f.alice.presence,
		Repo:     f.alice.repo,
		Gatherer: registry,
		Logger:   testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.server = server
	f.http = httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Shutdown(context.Background())
		f.http.Close()
	})
	f.client, err = NewClient(f.http.URL, f.http.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return f
}

func TestPresenceQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.client.Presence(ctx, f.doc, ref.FacetRoot)
	if err != nil {
		t.Fatalf("Presence: %v", err)
	}
	if len(empty.Peers) != 0 {
		t.Fatalf("expected no peers before bob joins, got %+v", empty.Peers)
	}

	session, err := f.bob.presence.Join(f.doc, ref.FacetRoot, map[string]any{"card": "c1"}, nil)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer session.Close()

	current, err := f.client.Presence(ctx, f.doc, ref.FacetRoot)
	if err != nil {
		t.Fatalf("Presence: %v", err)
	}
	if len(current.Peers) != 1 {
		t.Fatalf("expected bob, got %+v", current.Peers)
	}
	got := current.Peers[0]
	if got.Contact != f.bob.contact || got.Device != f.bob.device || !got.Present {
		t.Errorf("peer = %+v", got)
	}
	if value, _ := got.Value.(map[string]any); value["card"] != "c1" {
		t.Errorf("value = %#v, want card c1", got.Value)
	}

	cursor, err := f.client.Presence(ctx, f.doc, "cursor")
	if err != nil {
		t.Fatalf("Presence: %v", err)
	}
	if len(cursor.Peers) != 1 || cursor.Peers[0].Present {
		t.Errorf("bob is live but publishes no cursor facet, got %+v", cursor.Peers)
	}
}

// snapshotLog records the snapshots delivered to an observer.
type snapshotLog struct {
	mu   sync.Mutex
	seen []presence.Snapshot
}

func (l *snapshotLog) record(s presence.Snapshot) {
	l.mu.Lock()
	l.seen = append(l.seen, s)
	l.mu.Unlock()
}

func (l *snapshotLog) latest() presence.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[len(l.seen)-1]
}

func TestAcquireReleaseCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	log := &snapshotLog{}
	observation, err := f.bob.presence.Observe(f.doc, log.record)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer observation.Close()

	for want := 1; want <= 2; want++ {
		count, err := f.client.Acquire(ctx, f.doc)
		if err != nil || count != want {
			t.Fatalf("Acquire = %d, %v; want %d", count, err, want)
		}
	}
	// Setting a facet on an open document announces it at once.
	if err := f.client.SetFacet(ctx, f.doc, ref.FacetRoot, map[string]any{"card": "c9"}); err != nil {
		t.Fatalf("SetFacet: %v", err)
	}
	if live := log.latest().Live(); len(live) != 1 || live[0].Device != f.alice.device {
		t.Fatalf("bob should see alice once she holds the document, got %+v", live)
	}

	for want := 1; want >= 0; want-- {
		count, err := f.client.Release(ctx, f.doc)
		if err != nil || count != want {
			t.Fatalf("Release = %d, %v; want %d", count, err, want)
		}
	}
	if live := log.latest().Live(); len(live) != 0 {
		t.Errorf("bob still sees %+v after the last release", live)
	}

	_, err = f.client.Release(ctx, f.doc)
	if !IsConflict(err) {
		t.Fatalf("over-release returned %v, want 409", err)
	}
	if !strings.Contains(err.Error(), "release without matching acquire") {
		t.Errorf("error %q lost the server's message", err)
	}
}

func TestRootFacetRoundTrips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.client.SetFacet(ctx, f.doc, ref.FacetRoot, map[string]any{"zoom": 2}); err != nil {
		t.Fatalf("SetFacet: %v", err)
	}
	local := f.alice.presence.Local(f.doc)
	if _, ok := local[ref.FacetRoot]; !ok || len(local) != 1 {
		t.Fatalf("Local = %v, want only the root facet", local)
	}

	if err := f.client.SetFacet(ctx, f.doc, "cursor/main", "x"); err != nil {
		t.Fatalf("SetFacet: %v", err)
	}
	if _, ok := f.alice.presence.Local(f.doc)["cursor/main"]; !ok {
		t.Fatal("facet with a slash was not set")
	}

	if err := f.client.ClearFacet(ctx, f.doc, ref.FacetRoot); err != nil {
		t.Fatalf("ClearFacet: %v", err)
	}
	if _, ok := f.alice.presence.Local(f.doc)[ref.FacetRoot]; ok {
		t.Fatal("root facet survived ClearFacet")
	}
}

func TestFacetQueryDefaultsToRoot(t *testing.T) {
	f := newFixture(t)

	put := func(query, body string) {
		t.Helper()
		target := f.http.URL + "/v1/documents/" + f.doc.String() + "/presence/facet" + query
		request, err := http.NewRequest(http.MethodPut, target, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		response, err := f.http.Client().Do(request)
		if err != nil {
			t.Fatalf("PUT %s: %v", query, err)
		}
		response.Body.Close()
		if response.StatusCode != http.StatusNoContent {
			t.Fatalf("PUT %q: status = %d, want %d", query, response.StatusCode, http.StatusNoContent)
		}
	}

	put("", `{"zoom": 1}`)
	if value, ok := f.alice.presence.Local(f.doc)[ref.FacetRoot]; !ok || fmt.Sprint(value) != "map[zoom:1]" {
		t.Fatalf("PUT without ?facet= did not set the root facet: %v", f.alice.presence.Local(f.doc))
	}
	put("?facet=%2F", `{"zoom": 3}`)
	if value := f.alice.presence.Local(f.doc)[ref.FacetRoot]; fmt.Sprint(value) != "map[zoom:3]" {
		t.Fatalf("PUT ?facet=%%2F did not replace the root facet: %v", value)
	}
	if local := f.alice.presence.Local(f.doc); len(local) != 1 {
		t.Errorf("Local = %v, want only the root facet", local)
	}
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method, path, body string
		status             int
		message            string
	}{
		{"GET", "/v1/documents/not-a-doc/presence", "", http.StatusBadRequest, "invalid document id"},
		{"POST", "/v1/documents/doc_x/presence/acquire", "", http.StatusBadRequest, "invalid document id"},
		{"GET", "/v1/contacts/alice/online", "", http.StatusBadRequest, "invalid contact id"},
		{"GET", "/v1/devices/laptop/online", "", http.StatusBadRequest, "invalid device id"},
		{"PUT", "/v1/documents/" + f.doc.String() + "/presence/facet?facet=cursor", "{", http.StatusBadRequest, "invalid payload"},
		{"PUT", "/v1/documents/" + f.doc.String() + "/presence/facet?facet=cursor", "null", http.StatusBadRequest, "use DELETE"},
		{"POST", "/v1/documents", "[1, 2]", http.StatusBadRequest, "an array"},
	}
	for _, test := range tests {
		t.Run(test.method+" "+test.path, func(t *testing.T) {
			request, err := http.NewRequest(test.method, f.http.URL+test.path, strings.NewReader(test.body))
			if err != nil {
				t.Fatal(err)
			}
			response, err := f.http.Client().Do(request)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer response.Body.Close()

			if response.StatusCode != test.status {
				t.Errorf("status = %d, want %d", response.StatusCode, test.status)
			}
			if ct := response.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body ErrorResponse
			data, _ := io.ReadAll(response.Body)
			if err := json.Unmarshal(data, &body); err != nil || !strings.Contains(body.Error, test.message) {
				t.Errorf("body %s does not carry %q", data, test.message)
			}
		})
	}
}

func TestCreateAndReadDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.client.CreateDocument(ctx, []byte(`{
		// seeded from the CLI
		"title": "Planning",
		"cards": {"c1": {"text": "scope"},},
	}`))
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	content, err := f.client.Document(ctx, id)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if content["title"] != "Planning" {
		t.Errorf("title = %v", content["title"])
	}
	cards, _ := content["cards"].(map[string]any)
	if card, _ := cards["c1"].(map[string]any); card["text"] != "scope" {
		t.Errorf("cards = %#v", content["cards"])
	}
}

func TestContactAndDeviceOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	online, err := f.client.ContactOnline(ctx, f.bob.contact)
	if err != nil || online {
		t.Fatalf("ContactOnline(bob) before announcing = %v, %v", online, err)
	}
	if online, err := f.client.DeviceOnline(ctx, f.bob.device); err != nil || online {
		t.Fatalf("DeviceOnline(bob) before announcing = %v, %v", online, err)
	}

	announcement, err := f.bob.presence.AnnounceSelf()
	if err != nil {
		t.Fatalf("AnnounceSelf: %v", err)
	}
	defer announcement.Close()

	if online, err := f.client.ContactOnline(ctx, f.bob.contact); err != nil || !online {
		t.Errorf("ContactOnline(bob) = %v, %v; want true", online, err)
	}
	if online, err := f.client.DeviceOnline(ctx, f.bob.device); err != nil || !online {
		t.Errorf("DeviceOnline(bob) = %v, %v; want true", online, err)
	}
	devices, err := f.client.ContactDevices(ctx, f.bob.contact)
	if err != nil || len(devices) != 1 || devices[0] != f.bob.device {
		t.Errorf("ContactDevices(bob) = %v, %v", devices, err)
	}

	self, err := f.client.ContactDevices(ctx, f.alice.contact)
	if err != nil || len(self) != 1 || self[0] != f.alice.device {
		t.Errorf("ContactDevices(alice) = %v, %v; the local device is always online", self, err)
	}
}

func TestIdentity(t *testing.T) {
	f := newFixture(t)
	identity, err := f.client.Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if identity.Contact == nil || *identity.Contact != f.alice.contact || *identity.Device != f.alice.device {
		t.Errorf("identity = %+v", identity)
	}
}

func TestWatchStreamsSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan PresenceResponse, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.client.Watch(ctx, f.doc, ref.FacetRoot, func(update PresenceResponse) error {
			updates <- update
			return nil
		})
	}()

	first := testutil.RequireReceive(t, updates, 5*time.Second, "initial snapshot")
	if first.Document != f.doc || len(first.Peers) != 0 {
		t.Fatalf("initial snapshot = %+v", first)
	}

	session, err := f.bob.presence.Join(f.doc, ref.FacetRoot, map[string]any{"card": "c2"}, nil)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	joined := testutil.RequireReceive(t, updates, 5*time.Second, "bob's arrival")
	if len(joined.Peers) != 1 || joined.Peers[0].Device != f.bob.device {
		t.Fatalf("after join = %+v", joined)
	}

	session.Close()
	left := testutil.RequireReceive(t, updates, 5*time.Second, "bob's departure")
	if len(left.Peers) != 0 {
		t.Fatalf("after departure = %+v", left)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "watch return"); !errors.Is(err, context.Canceled) {
		t.Errorf("Watch returned %v, want context.Canceled", err)
	}
}

func TestShutdownEndsWatch(t *testing.T) {
	f := newFixture(t)

	updates := make(chan PresenceResponse, 4)
	done := make(chan error, 1)
	go func() {
		done <- f.client.Watch(context.Background(), f.doc, ref.FacetRoot, func(update PresenceResponse) error {
			updates <- update
			return nil
		})
	}()
	testutil.RequireReceive(t, updates, 5*time.Second, "initial snapshot")

	if err := f.server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := testutil.RequireReceive(t, done, 5*time.Second, "watch return"); err != nil {
		t.Errorf("Watch returned %v after shutdown, want nil", err)
	}

	if _, err := f.client.Presence(context.Background(), f.doc, ref.FacetRoot); err == nil {
		t.Error("presence query succeeded after shutdown")
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	if _, err := f.client.Acquire(context.Background(), f.doc); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	response, err := f.http.Client().Get(f.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)
	if !strings.Contains(string(body), "corkboard_presence_open_documents 1") {
		t.Errorf("metrics do not report the open document:\n%s", body)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without a presence manager succeeded")
	}
	if _, err := NewClient("ftp://example.com", nil); err == nil {
		t.Error("NewClient accepted a non-HTTP URL")
	}
}
