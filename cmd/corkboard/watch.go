// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/corkboard-foundation/corkboard/cmd/corkboard/cli"
	"github.com/corkboard-foundation/corkboard/lib/api"
	"github.com/corkboard-foundation/corkboard/lib/process"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// watchPrinter writes each presence update as one JSON object per
// line, for scripts reading the stream.
type watchPrinter struct {
	out io.Writer
}

func (p *watchPrinter) print(update api.PresenceResponse) error {
	return json.NewEncoder(p.out).Encode(update)
}

func watchCommand() *cli.Command {
	var (
		conn  connection
		facet string
		join  string
	)
	return &cli.Command{
		Name:    "watch",
		Summary: "Stream presence on a document until interrupted",
		Description: `Stream the live peers on a document for one facet.

With --join the peer also holds the document open and publishes the
given payload while the watch runs, so others see this device too.
The payload is withdrawn and the document released on exit.`,
		Usage: "corkboard watch [flags] DOCUMENT",
		Examples: []cli.Example{
			{Description: "Watch who is on a board", Command: "corkboard watch doc_..."},
			{Description: "Join with a cursor and watch others' cursors", Command: `corkboard watch doc_... --facet cursor --join '{"x":0,"y":0}'`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			facetFlag(flagSet, &facet)
			flagSet.StringVar(&join, "join", "", "hold the document open and publish this payload while watching")
			return flagSet
		},
		Run: func(args []string) error {
			doc, err := documentArg(args, 0)
			if err != nil {
				return err
			}
			client, err := conn.client(true)
			if err != nil {
				return err
			}
			ctx, stop := process.SignalContext()
			defer stop()

			if join != "" {
				payload, err := parsePayload(join)
				if err != nil {
					return fmt.Errorf("--join: %w", err)
				}
				leave, err := joinDocument(ctx, client, doc, ref.FacetKey(facet), payload)
				if err != nil {
					return err
				}
				defer leave()
			}

			if cli.IsTerminal(os.Stdout) {
				return runWatchUI(ctx, client, doc, ref.FacetKey(facet))
			}
			printer := &watchPrinter{out: os.Stdout}
			err = client.Watch(ctx, doc, ref.FacetKey(facet), printer.print)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// joinDocument acquires doc and publishes payload under facet. The
// returned function undoes both, on a fresh context since ctx is
// usually cancelled by then.
func joinDocument(ctx context.Context, client *api.Client, doc ref.DocumentID, facet ref.FacetKey, payload any) (func(), error) {
	if _, err := client.Acquire(ctx, doc); err != nil {
		return nil, err
	}
	if err := client.SetFacet(ctx, doc, facet, payload); err != nil {
		client.Release(context.Background(), doc)
		return nil, err
	}
	return func() {
		cleanup, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := client.ClearFacet(cleanup, doc, facet); err != nil {
			fmt.Fprintf(os.Stderr, "warning: clearing %s: %v\n", facet, err)
		}
		if _, err := client.Release(cleanup, doc); err != nil {
			fmt.Fprintf(os.Stderr, "warning: releasing %s: %v\n", doc, err)
		}
	}, nil
}
