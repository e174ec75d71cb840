// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/corkboard-foundation/corkboard/lib/testutil"
)

func TestMemorySignalerOfferAnswer(t *testing.T) {
	ctx := context.Background()
	signaler := NewMemorySignaler()
	alpha, beta := testDevice("alpha"), testDevice("beta")

	if err := signaler.PublishOffer(ctx, alpha, beta, "offer-sdp"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}

	offers, _ := signaler.PollOffers(ctx, beta)
	if len(offers) != 1 || offers[0].Peer != alpha || offers[0].SDP != "offer-sdp" {
		t.Fatalf("beta's offers = %+v", offers)
	}
	if again, _ := signaler.PollOffers(ctx, beta); len(again) != 0 {
		t.Errorf("offer returned twice: %+v", again)
	}
	if none, _ := signaler.PollOffers(ctx, alpha); len(none) != 0 {
		t.Errorf("offer delivered to its sender: %+v", none)
	}

	signaler.PublishAnswer(ctx, alpha, beta, "answer-sdp")
	answers, _ := signaler.PollAnswers(ctx, alpha)
	if len(answers) != 1 || answers[0].Peer != beta || answers[0].SDP != "answer-sdp" {
		t.Fatalf("alpha's answers = %+v", answers)
	}
}

func TestMemorySignalerRepublishedOfferIsNew(t *testing.T) {
	ctx := context.Background()
	signaler := NewMemorySignaler()
	alpha, beta := testDevice("alpha"), testDevice("beta")

	signaler.PublishOffer(ctx, alpha, beta, "first")
	signaler.PollOffers(ctx, beta)
	time.Sleep(time.Millisecond) //nolint:realclock distinct publication timestamps
	signaler.PublishOffer(ctx, alpha, beta, "second")

	offers, _ := signaler.PollOffers(ctx, beta)
	if len(offers) != 1 || offers[0].SDP != "second" {
		t.Fatalf("offers = %+v, want the republished offer", offers)
	}
}

// natsURL returns the server named by CORKBOARD_TEST_NATS_URL or skips.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("CORKBOARD_TEST_NATS_URL")
	if url == "" {
		t.Skip("CORKBOARD_TEST_NATS_URL not set")
	}
	return url
}

func TestNATSSignalerOfferAnswer(t *testing.T) {
	conn, err := nats.Connect(natsURL(t))
	if err != nil {
		t.Fatalf("nats.Connect: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	prefix := testutil.UniqueID("corkboard-test")
	signaler := NewNATSSignaler(conn, prefix, testutil.Logger(t))
	defer signaler.Close()
	alpha, beta := testDevice("alpha"), testDevice("beta")

	if err := signaler.Listen(beta); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := signaler.PublishOffer(ctx, alpha, beta, "offer-sdp"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var offers []SignalMessage
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		batch, _ := signaler.PollOffers(ctx, beta)
		offers = append(offers, batch...)
		return len(offers) > 0
	}, "offer arrives")
	if offers[0].Peer != alpha || offers[0].SDP != "offer-sdp" {
		t.Errorf("offer = %+v", offers[0])
	}
}
