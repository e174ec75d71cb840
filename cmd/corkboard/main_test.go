// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/corkboard-foundation/corkboard/cmd/corkboard/cli"
	"github.com/corkboard-foundation/corkboard/lib/api"
	"github.com/corkboard-foundation/corkboard/lib/clock"
	"github.com/corkboard-foundation/corkboard/lib/config"
	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/testutil"
	"github.com/corkboard-foundation/corkboard/transport"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	manager *presence.Manager
	repo    *docstore.Repo
	url     string
	client  *api.Client
	doc     ref.DocumentID
}

// newFixture serves one peer's API over httptest.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := transport.NewMemoryHub()
	fake := clock.Fake(epoch)
	contact := ref.ContactFromDocument(ref.NewDocumentID([]byte("contact:cli")))
	device := ref.DeviceFromDocument(ref.NewDocumentID([]byte("device:cli")))

	repo, err := docstore.NewRepo(docstore.RepoConfig{
		Device:    device,
		Changes:   hub.Messenger(device, transport.ChannelChanges),
		Ephemeral: hub.Messenger(device, transport.ChannelPresence),
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
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.SetIdentity(contact, device); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	server, err := api.New(api.Config{Presence: manager, Repo: repo, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Shutdown(context.Background())
		httpServer.Close()
		manager.Close()
		repo.Close()
	})

	client, err := api.NewClient(httpServer.URL, httpServer.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &fixture{
		manager: manager,
		repo:    repo,
		url:     httpServer.URL,
		client:  client,
		doc:     ref.NewDocumentID([]byte(testutil.UniqueID("board"))),
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		raw     string
		want    any
		wantErr bool
	}{
		{raw: `{"x":1}`, want: map[string]any{"x": float64(1)}},
		{raw: `42`, want: float64(42)},
		{raw: `"quoted"`, want: "quoted"},
		{raw: `reviewing`, want: "reviewing"},
		{raw: `null`, wantErr: true},
		{raw: ``, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			got, err := parsePayload(test.raw)
			if test.wantErr {
				if err == nil {
					t.Fatalf("parsePayload(%q) = %v, want error", test.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePayload(%q): %v", test.raw, err)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(test.want)
			if !bytes.Equal(gotJSON, wantJSON) {
				t.Errorf("parsePayload(%q) = %s, want %s", test.raw, gotJSON, wantJSON)
			}
		})
	}
}

func TestDocumentArg(t *testing.T) {
	doc := ref.NewDocumentID([]byte("x"))
	if got, err := documentArg([]string{doc.String()}, 0); err != nil || got != doc {
		t.Errorf("documentArg = %v, %v", got, err)
	}
	if _, err := documentArg([]string{doc.String()}, 1); err == nil {
		t.Error("missing payload argument accepted")
	}
	if _, err := documentArg([]string{"board"}, 0); err == nil {
		t.Error("malformed document ID accepted")
	}
}

func TestIdentitySnippetLoadsAsConfig(t *testing.T) {
	identity, err := newIdentity("")
	if err != nil {
		t.Fatalf("newIdentity: %v", err)
	}
	var buffer bytes.Buffer
	if err := writeIdentityYAML(&buffer, identity); err != nil {
		t.Fatalf("writeIdentityYAML: %v", err)
	}

	path := filepath.Join(t.TempDir(), "corkboard.yaml")
	if err := os.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	contact, device, ok, err := cfg.IdentityIDs()
	if err != nil || !ok {
		t.Fatalf("IdentityIDs = %v, %v", ok, err)
	}
	if contact.String() != identity.Contact || device.String() != identity.Device {
		t.Errorf("loaded %s/%s, generated %+v", contact, device, identity)
	}
}

func TestIdentityReusesContact(t *testing.T) {
	first, err := newIdentity("")
	if err != nil {
		t.Fatal(err)
	}
	second, err := newIdentity(first.Contact)
	if err != nil {
		t.Fatalf("newIdentity(%s): %v", first.Contact, err)
	}
	if second.Contact != first.Contact {
		t.Errorf("contact changed: %s -> %s", first.Contact, second.Contact)
	}
	if second.Device == first.Device {
		t.Error("second device reused the first device ID")
	}
	if _, err := newIdentity("not-a-contact"); err == nil {
		t.Error("malformed contact accepted")
	}
}

func TestImportBodyFillsTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadmap.jsonc")
	content := "{\n  // cards by id\n  \"cards\": {\"c1\": {\"x\": 1}},\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	body, err := importBody(path, nil)
	if err != nil {
		t.Fatalf("importBody: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("body is not JSON: %v\n%s", err, body)
	}
	if doc["title"] != "roadmap" {
		t.Errorf("title = %v, want roadmap", doc["title"])
	}
}

func TestImportBodyFromStdin(t *testing.T) {
	body, err := importBody("-", strings.NewReader(`{"title": "kept"}`))
	if err != nil {
		t.Fatalf("importBody: %v", err)
	}
	if !strings.Contains(string(body), `"kept"`) {
		t.Errorf("body = %s", body)
	}
	if _, err := importBody("-", strings.NewReader(`[1, 2]`)); err == nil {
		t.Error("top-level array accepted")
	}
}

func TestRenderPlain(t *testing.T) {
	contact := ref.ContactFromDocument(ref.NewDocumentID([]byte("alice")))
	device := ref.DeviceFromDocument(ref.NewDocumentID([]byte("alice-laptop")))
	response := api.PresenceResponse{
		Document: ref.NewDocumentID([]byte("board")),
		Facet:    "cursor",
		Peers: []api.PeerPresence{
			{Contact: contact, Device: device, Present: true, Value: map[string]any{"x": 3}},
			{Contact: contact, Device: device},
		},
	}

	output := newRenderer(false).render(response)
	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), output)
	}
	if want := contact.String() + "\t" + device.String() + "\t" + `{"x":3}`; lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if !strings.HasSuffix(lines[1], "\t-") {
		t.Errorf("absent payload rendered as %q", lines[1])
	}
}

func TestRenderStyledEmpty(t *testing.T) {
	output := newRenderer(true).render(api.PresenceResponse{
		Document: ref.NewDocumentID([]byte("board")),
		Facet:    ref.FacetRoot,
	})
	if !strings.Contains(output, "0 peers") || !strings.Contains(output, "nobody else is here") {
		t.Errorf("styled output = %q", output)
	}
}

func TestShortID(t *testing.T) {
	id := ref.NewDocumentID([]byte("x")).String()
	if got := shortID(id); len(got) != shortIDLength || strings.HasPrefix(got, "doc_") {
		t.Errorf("shortID(%s) = %q", id, got)
	}
	if got := shortID("doc_abc"); got != "abc" {
		t.Errorf("shortID(doc_abc) = %q", got)
	}
}

func TestWatchPrinterEmitsJSONLines(t *testing.T) {
	var buffer bytes.Buffer
	printer := &watchPrinter{out: &buffer}
	doc := ref.NewDocumentID([]byte("board"))
	for range 2 {
		if err := printer.print(api.PresenceResponse{Document: doc, Facet: ref.FacetRoot}); err != nil {
			t.Fatal(err)
		}
	}
	lines := strings.Split(strings.TrimSuffix(buffer.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buffer.String())
	}
	var decoded api.PresenceResponse
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil || decoded.Document != doc {
		t.Errorf("line does not decode: %v, %+v", err, decoded)
	}
}

func TestCommandNamesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, command := range root().Subcommands {
		if seen[command.Name] {
			t.Errorf("duplicate command %q", command.Name)
		}
		seen[command.Name] = true
		if command.Summary == "" {
			t.Errorf("command %q has no summary", command.Name)
		}
	}
}

func TestAcquireAndReleaseCommands(t *testing.T) {
	f := newFixture(t)

	if err := root().Execute([]string{"acquire", "--api", f.url, f.doc.String()}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := f.manager.Count(f.doc); got != 1 {
		t.Fatalf("Count after acquire = %d, want 1", got)
	}
	if err := root().Execute([]string{"release", "--api", f.url, f.doc.String()}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := f.manager.Count(f.doc); got != 0 {
		t.Fatalf("Count after release = %d, want 0", got)
	}
}

func TestSetAndClearCommands(t *testing.T) {
	f := newFixture(t)
	if _, err := f.manager.Acquire(f.doc); err != nil {
		t.Fatal(err)
	}

	if err := root().Execute([]string{"set", "--api", f.url, "--facet", "cursor", f.doc.String(), `{"x":7}`}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := f.manager.Local(f.doc)["cursor"]; !ok {
		t.Fatalf("facet not set: %v", f.manager.Local(f.doc))
	}
	if err := root().Execute([]string{"clear", "--api", f.url, "-f", "cursor", f.doc.String()}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := f.manager.Local(f.doc)["cursor"]; ok {
		t.Fatalf("facet still set after clear")
	}
}

func TestOnlineReportsOfflineThroughExitCode(t *testing.T) {
	f := newFixture(t)
	stranger := ref.ContactFromDocument(ref.NewDocumentID([]byte("stranger")))

	err := root().Execute([]string{"online", "--api", f.url, "-q", stranger.String()})
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.ExitCode() != 1 {
		t.Fatalf("online for an absent contact = %v, want exit code 1", err)
	}
}

func TestJoinDocumentUndoesOnLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	leave, err := joinDocument(ctx, f.client, f.doc, "cursor", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("joinDocument: %v", err)
	}
	if got := f.manager.Count(f.doc); got != 1 {
		t.Fatalf("Count while joined = %d, want 1", got)
	}
	if _, ok := f.manager.Local(f.doc)["cursor"]; !ok {
		t.Fatal("payload not published while joined")
	}

	leave()
	if got := f.manager.Count(f.doc); got != 0 {
		t.Errorf("Count after leave = %d, want 0", got)
	}
	if len(f.manager.Local(f.doc)) != 0 {
		t.Errorf("payload left behind: %v", f.manager.Local(f.doc))
	}
}

func TestRenderTruncatesToWidth(t *testing.T) {
	contact := ref.ContactFromDocument(ref.NewDocumentID([]byte("alice")))
	device := ref.DeviceFromDocument(ref.NewDocumentID([]byte("alice-laptop")))
	r := newRenderer(true)
	r.width = 40
	output := r.render(api.PresenceResponse{
		Document: ref.NewDocumentID([]byte("board")),
		Facet:    ref.FacetRoot,
		Peers: []api.PeerPresence{{
			Contact: contact, Device: device, Present: true,
			Value: strings.Repeat("long ", 40),
		}},
	})
	for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
		if width := lipgloss.Width(line); width > 40 {
			t.Errorf("line is %d cells wide: %q", width, line)
		}
	}
}

func TestWatchModelShowsLatestSnapshot(t *testing.T) {
	doc := ref.NewDocumentID([]byte("board"))
	contact := ref.ContactFromDocument(ref.NewDocumentID([]byte("alice")))
	device := ref.DeviceFromDocument(ref.NewDocumentID([]byte("alice-laptop")))

	var model tea.Model = newWatchModel(doc)
	if view := model.View(); !strings.Contains(view, "waiting for") {
		t.Errorf("initial view = %q", view)
	}

	model, _ = model.Update(presenceMsg{
		Document: doc,
		Facet:    ref.FacetRoot,
		Peers:    []api.PeerPresence{{Contact: contact, Device: device, Present: true, Value: "here"}},
	})
	if view := model.View(); !strings.Contains(view, "1 peer") || !strings.Contains(view, `"here"`) {
		t.Errorf("view after update = %q", view)
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	if view := model.View(); !strings.Contains(view, contact.String()) {
		t.Errorf("full IDs not shown after toggle: %q", view)
	}

	_, command := model.Update(streamEndedMsg{err: errors.New("gone")})
	if command == nil {
		t.Fatal("stream end should quit the program")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Error("stream end did not produce tea.Quit")
	}
}

func TestWriteHighlightedJSONKeepsContent(t *testing.T) {
	var buffer bytes.Buffer
	if err := writeHighlightedJSON(&buffer, map[string]any{"title": "roadmap"}); err != nil {
		t.Fatalf("writeHighlightedJSON: %v", err)
	}
	plain := ansi.Strip(buffer.String())
	if !strings.Contains(plain, `"title"`) || !strings.Contains(plain, `"roadmap"`) {
		t.Errorf("highlighted output lost content: %q", plain)
	}
}
