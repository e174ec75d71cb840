// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/corkboard-foundation/corkboard/lib/testutil"
)

func TestNATSMessengerConfig(t *testing.T) {
	if _, err := NewNATSMessenger(NATSConfig{Device: testDevice("a"), Channel: ChannelPresence}); err == nil {
		t.Error("missing connection accepted")
	}
	if _, err := NewNATSMessenger(NATSConfig{Conn: &nats.Conn{}, Device: testDevice("a"), Channel: "bad.channel"}); err == nil {
		t.Error("channel with a subject separator accepted")
	}
}

func TestNATSMessengerSubject(t *testing.T) {
	messenger, err := NewNATSMessenger(NATSConfig{Conn: &nats.Conn{}, Device: testDevice("a"), Channel: ChannelPresence})
	if err != nil {
		t.Fatalf("NewNATSMessenger: %v", err)
	}
	doc := testDocument("board")
	if got, want := messenger.Subject(doc), "corkboard.presence."+doc.String(); got != want {
		t.Errorf("Subject = %q, want %q", got, want)
	}
}

func TestNATSMessengerRoundTrip(t *testing.T) {
	url := natsURL(t)
	prefix := testutil.UniqueID("corkboard-test")
	doc := testDocument("board")

	connect := func(name string) *NATSMessenger {
		conn, err := nats.Connect(url)
		if err != nil {
			t.Fatalf("nats.Connect: %v", err)
		}
		t.Cleanup(conn.Close)
		messenger, err := NewNATSMessenger(NATSConfig{
			Conn:          conn,
			Device:        testDevice(name),
			Channel:       ChannelPresence,
			SubjectPrefix: prefix,
			Logger:        testutil.Logger(t),
		})
		if err != nil {
			t.Fatalf("NewNATSMessenger: %v", err)
		}
		t.Cleanup(func() { messenger.Close() })
		return messenger
	}
	alice, bob := connect("alice"), connect("bob")

	var aliceInbox, bobInbox syncInbox
	alice.Subscribe(doc, aliceInbox.handle)
	bob.Subscribe(doc, bobInbox.handle)
	alice.conn.Flush()
	bob.conn.Flush()

	if err := alice.Message(context.Background(), doc, []byte("beat")); err != nil {
		t.Fatalf("Message: %v", err)
	}
	testutil.RequireEventually(t, 5*time.Second, func() bool { return bobInbox.len() == 1 }, "bob receives the message")
	if aliceInbox.len() != 0 {
		t.Errorf("alice received her own echo")
	}
}
