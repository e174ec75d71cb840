// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/corkboard-foundation/corkboard/cmd/corkboard/cli"
	"github.com/corkboard-foundation/corkboard/lib/api"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// parsePayload decodes a facet payload given on the command line. Any
// JSON value except null is accepted; a bare word that is not JSON is
// taken as a string.
func parsePayload(raw string) (any, error) {
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		if raw == "" {
			return nil, fmt.Errorf("payload is empty")
		}
		return raw, nil
	}
	if payload == nil {
		return nil, fmt.Errorf("payload must not be null; use 'corkboard clear' to withdraw a facet")
	}
	return payload, nil
}

// countCommand builds acquire and release, which differ only in the
// call they make.
func countCommand(name, summary string, call func(*api.Client, context.Context, ref.DocumentID) (int, error)) *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "corkboard " + name + " [flags] DOCUMENT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			doc, err := documentArg(args, 0)
			if err != nil {
				return err
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			count, err := call(client, ctx, doc)
			if err != nil {
				return err
			}
			if done, err := output.Emit(api.CountResponse{Document: doc, Count: count}); done {
				return err
			}
			fmt.Printf("%s open references: %d\n", doc, count)
			return nil
		},
	}
}

func acquireCommand() *cli.Command {
	command := countCommand("acquire", "Hold a document open so the peer announces it",
		(*api.Client).Acquire)
	command.Description = `Hold a document open on the peer.

While a document has open references the peer heartbeats on it and
other devices see this device as present. Every acquire must be
matched by a release.`
	return command
}

func releaseCommand() *cli.Command {
	return countCommand("release", "Drop one open reference to a document",
		(*api.Client).Release)
}

func setCommand() *cli.Command {
	var (
		conn  connection
		facet string
	)
	return &cli.Command{
		Name:    "set",
		Summary: "Publish a facet payload on a document",
		Usage:   "corkboard set [flags] DOCUMENT PAYLOAD",
		Examples: []cli.Example{
			{Description: "Publish a cursor position", Command: `corkboard set doc_... --facet cursor '{"x":10,"y":4}'`},
			{Description: "Publish a plain string on the root facet", Command: "corkboard set doc_... reviewing"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("set", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			facetFlag(flagSet, &facet)
			return flagSet
		},
		Run: func(args []string) error {
			doc, err := documentArg(args, 1)
			if err != nil {
				return err
			}
			payload, err := parsePayload(args[1])
			if err != nil {
				return err
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return client.SetFacet(ctx, doc, ref.FacetKey(facet), payload)
		},
	}
}

func clearCommand() *cli.Command {
	var (
		conn  connection
		facet string
	)
	return &cli.Command{
		Name:    "clear",
		Summary: "Withdraw a facet payload from a document",
		Usage:   "corkboard clear [flags] DOCUMENT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			facetFlag(flagSet, &facet)
			return flagSet
		},
		Run: func(args []string) error {
			doc, err := documentArg(args, 0)
			if err != nil {
				return err
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return client.ClearFacet(ctx, doc, ref.FacetKey(facet))
		},
	}
}

func presenceCommand() *cli.Command {
	var (
		conn   connection
		facet  string
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "presence",
		Summary: "List the peers present on a document",
		Description: `List the live peers on a document and their payloads for one facet.

The peer starts observing a document on the first query, so a document
nobody on this device has opened may list no peers until their next
heartbeat arrives.`,
		Usage: "corkboard presence [flags] DOCUMENT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("presence", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			facetFlag(flagSet, &facet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			doc, err := documentArg(args, 0)
			if err != nil {
				return err
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			response, err := client.Presence(ctx, doc, ref.FacetKey(facet))
			if err != nil {
				return err
			}
			if done, err := output.Emit(response); done {
				return err
			}
			fmt.Print(newRenderer(cli.IsTerminal(os.Stdout)).render(response))
			return nil
		},
	}
}

func onlineCommand() *cli.Command {
	var (
		conn   connection
		device bool
		quiet  bool
	)
	return &cli.Command{
		Name:    "online",
		Summary: "Check whether a contact or device is online",
		Description: `Check whether a contact (any of their devices) or a single device is
online. Exits 0 when online and 1 when offline.`,
		Usage: "corkboard online [flags] ID",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("online", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.BoolVar(&device, "device", false, "ID is a device rather than a contact")
			flagSet.BoolVarP(&quiet, "quiet", "q", false, "print nothing; report through the exit status only")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one ID, got %d arguments", len(args))
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			var online bool
			if device {
				id, err := ref.ParseDeviceID(args[0])
				if err != nil {
					return err
				}
				online, err = client.DeviceOnline(ctx, id)
				if err != nil {
					return err
				}
			} else {
				id, err := ref.ParseContactID(args[0])
				if err != nil {
					return err
				}
				online, err = client.ContactOnline(ctx, id)
				if err != nil {
					return err
				}
			}

			if !quiet {
				if online {
					fmt.Println("online")
				} else {
					fmt.Println("offline")
				}
			}
			if !online {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func devicesCommand() *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "devices",
		Summary: "List a contact's online devices",
		Usage:   "corkboard devices [flags] CONTACT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("devices", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one contact ID, got %d arguments", len(args))
			}
			contact, err := ref.ParseContactID(args[0])
			if err != nil {
				return err
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			devices, err := client.ContactDevices(ctx, contact)
			if err != nil {
				return err
			}
			if done, err := output.Emit(api.DevicesResponse{Contact: contact, Devices: devices}); done {
				return err
			}
			for _, device := range devices {
				fmt.Println(device)
			}
			return nil
		},
	}
}
