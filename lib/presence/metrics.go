// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts presence traffic. Construct with NewMetrics.
type Metrics struct {
	HeartbeatsSent     prometheus.Counter
	HeartbeatsReceived prometheus.Counter
	DeparturesSent     prometheus.Counter
	DeparturesReceived prometheus.Counter
	Expirations        prometheus.Counter
	Malformed          prometheus.Counter
	Suppressed         prometheus.Counter
	OverReleases       prometheus.Counter
	OpenDocuments      prometheus.Gauge
}

// NewMetrics creates the presence metrics and registers them with
// registerer. A nil registerer leaves them unregistered, which is what
// tests want.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corkboard",
			Subsystem: "presence",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		HeartbeatsSent:     counter("heartbeats_sent_total", "Heartbeats handed to the transport."),
		HeartbeatsReceived: counter("heartbeats_received_total", "Heartbeats applied to the remote cache."),
		DeparturesSent:     counter("departures_sent_total", "Departure messages handed to the transport."),
		DeparturesReceived: counter("departures_received_total", "Departure messages applied to the remote cache."),
		Expirations:        counter("expirations_total", "Remote entries cleared by TTL expiry."),
		Malformed:          counter("malformed_messages_total", "Inbound presence messages dropped as malformed."),
		Suppressed:         counter("suppressed_publications_total", "Heartbeats not sent because the local identity was unknown."),
		OverReleases:       counter("over_releases_total", "Releases of a document that was not held open."),
		OpenDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corkboard",
			Subsystem: "presence",
			Name:      "open_documents",
			Help:      "Documents with a positive open reference count.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(
			m.HeartbeatsSent, m.HeartbeatsReceived,
			m.DeparturesSent, m.DeparturesReceived,
			m.Expirations, m.Malformed, m.Suppressed, m.OverReleases,
			m.OpenDocuments,
		)
	}
	return m
}
