// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries document-scoped messages between devices.
//
// [Messenger] is the contract the presence and replication layers are
// written against: fire-and-forget delivery of small payloads to every
// other device subscribed to a document, on a named channel
// ([ChannelPresence], [ChannelChanges]). Nothing is ordered,
// acknowledged or retried. A device never receives its own messages.
//
// Four implementations cover the deployments:
//
//   - [MemoryHub] delivers synchronously inside one process, with a
//     [DropFunc] hook for loss injection. Tests use it to run several
//     devices against each other on a fake clock.
//   - [NATSMessenger] publishes on core NATS subjects
//     "<prefix>.<channel>.<document>". The broker echoes publications,
//     so envelopes carry the sender and the messenger drops its own.
//   - [PeerNetwork] POSTs envelopes to a fixed list of LAN peers through
//     a [Dialer] and receives them through an HTTP handler served on a
//     [Listener] ([TCPListener], [TCPDialer], [HTTPTransport]).
//   - [WebRTCMesh] holds one pion PeerConnection per peer device with a
//     single unordered, zero-retransmit data channel. Session
//     descriptions are exchanged through a [Signaler] ([MemorySignaler]
//     in process, [NATSSignaler] over a broker) in vanilla ICE mode.
//     When two devices offer to each other at once, the one with the
//     lexicographically smaller device ID is the offerer.
//
// The network transports frame payloads in a CBOR envelope naming the
// sender, channel and document, and fan inbound envelopes out to local
// handlers by (channel, document).
package transport
