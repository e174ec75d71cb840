// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/corkboard-foundation/corkboard/lib/config"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/transport"
)

// link is the pair of messengers a peer runs on: presence traffic and
// document replication travel on separate channels of one transport.
type link struct {
	presence transport.Messenger
	changes  transport.Messenger
	close    func() error
}

// openTransport connects the transport selected by transport.kind.
func openTransport(ctx context.Context, cfg *config.Config, device ref.DeviceID, logger *slog.Logger) (*link, error) {
	settings := cfg.Transport
	logger = logger.With("transport", settings.Kind)

	switch settings.Kind {
	case config.TransportMemory:
		hub := transport.NewMemoryHub()
		return messengerLink(
			hub.Messenger(device, transport.ChannelPresence),
			hub.Messenger(device, transport.ChannelChanges),
			nil,
		), nil

	case config.TransportNATS:
		conn, err := connectNATS(settings.NATSURL, device, logger)
		if err != nil {
			return nil, err
		}
		presenceMessenger, changesMessenger, err := natsMessengers(conn, device, settings.SubjectPrefix, logger)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return messengerLink(presenceMessenger, changesMessenger, func() error {
			conn.Close()
			return nil
		}), nil

	case config.TransportPeer:
		network, err := transport.NewPeerNetwork(transport.PeerNetworkConfig{
			Device: device,
			Peers:  settings.Peers,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		listener, err := transport.NewTCPListener(settings.Listen)
		if err != nil {
			network.Close()
			return nil, err
		}
		go func() {
			if err := listener.Serve(ctx, network.Handler()); err != nil {
				logger.Error("peer listener stopped", "error", err)
			}
		}()
		logger.Info("accepting peer messages", "address", listener.Address(), "peers", len(settings.Peers))
		return messengerLink(
			network.Messenger(transport.ChannelPresence),
			network.Messenger(transport.ChannelChanges),
			func() error {
				return errors.Join(listener.Close(), network.Close())
			},
		), nil

	case config.TransportWebRTC:
		return openWebRTC(ctx, settings, device, logger)

	default:
		return nil, fmt.Errorf("unknown transport kind %q", settings.Kind)
	}
}

// messengerLink bundles two messengers with the teardown of whatever
// they run on. The messengers close first.
func messengerLink(presenceMessenger, changesMessenger transport.Messenger, closeUnderlying func() error) *link {
	return &link{
		presence: presenceMessenger,
		changes:  changesMessenger,
		close: func() error {
			err := errors.Join(presenceMessenger.Close(), changesMessenger.Close())
			if closeUnderlying != nil {
				err = errors.Join(err, closeUnderlying())
			}
			return err
		},
	}
}

func connectNATS(url string, device ref.DeviceID, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("corkboard-peer "+device.String()),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	logger.Info("connected to nats", "url", conn.ConnectedUrl())
	return conn, nil
}

func natsMessengers(conn *nats.Conn, device ref.DeviceID, prefix string, logger *slog.Logger) (presenceMessenger, changesMessenger *transport.NATSMessenger, err error) {
	presenceMessenger, err = transport.NewNATSMessenger(transport.NATSConfig{
		Conn:          conn,
		Device:        device,
		Channel:       transport.ChannelPresence,
		SubjectPrefix: prefix,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, err
	}
	changesMessenger, err = transport.NewNATSMessenger(transport.NATSConfig{
		Conn:          conn,
		Device:        device,
		Channel:       transport.ChannelChanges,
		SubjectPrefix: prefix,
		Logger:        logger,
	})
	if err != nil {
		presenceMessenger.Close()
		return nil, nil, err
	}
	return presenceMessenger, changesMessenger, nil
}

// openWebRTC builds the data-channel mesh. Signaling runs over NATS,
// the only signaling backend the config accepts.
func openWebRTC(ctx context.Context, settings config.TransportConfig, device ref.DeviceID, logger *slog.Logger) (*link, error) {
	peers := make([]ref.DeviceID, 0, len(settings.Peers))
	for _, raw := range settings.Peers {
		peer, err := ref.ParseDeviceID(raw)
		if err != nil {
			return nil, fmt.Errorf("transport.peers: %w", err)
		}
		if peer != device {
			peers = append(peers, peer)
		}
	}

	specs := make([]transport.ICEServerSpec, 0, len(settings.ICEServers))
	for _, server := range settings.ICEServers {
		specs = append(specs, transport.ICEServerSpec{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	ice, err := transport.ICEConfigFromSpecs(specs)
	if err != nil {
		return nil, fmt.Errorf("transport.ice_servers: %w", err)
	}

	conn, err := connectNATS(settings.NATSURL, device, logger)
	if err != nil {
		return nil, err
	}
	signaler := transport.NewNATSSignaler(conn, settings.SubjectPrefix, logger)
	if err := signaler.Listen(device); err != nil {
		signaler.Close()
		conn.Close()
		return nil, err
	}

	mesh, err := transport.NewWebRTCMesh(transport.WebRTCConfig{
		Device:   device,
		Peers:    peers,
		Signaler: signaler,
		ICE:      ice,
		Logger:   logger,
	})
	if err != nil {
		signaler.Close()
		conn.Close()
		return nil, err
	}
	mesh.Start(ctx)
	logger.Info("webrtc mesh started", "peers", len(peers), "ice_servers", len(ice.Servers))

	return messengerLink(
		mesh.Messenger(transport.ChannelPresence),
		mesh.Messenger(transport.ChannelChanges),
		func() error {
			err := errors.Join(mesh.Close(), signaler.Close())
			conn.Close()
			return err
		},
	), nil
}
