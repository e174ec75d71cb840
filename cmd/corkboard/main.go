// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Corkboard is the command-line client for a running corkboard-peer. It
// creates and imports documents, holds documents open, publishes facet
// payloads, and prints or streams who else is present.
package main

import (
	"fmt"
	"os"

	"github.com/corkboard-foundation/corkboard/cmd/corkboard/cli"
	"github.com/corkboard-foundation/corkboard/lib/version"
)

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root() *cli.Command {
	return &cli.Command{
		Name: "corkboard",
		Description: `Corkboard shares who is looking at which document, and where.

Every command except identity and version talks to a corkboard-peer's
local API, by default http://127.0.0.1:7420 (override with --api or
CORKBOARD_API).`,
		Subcommands: []*cli.Command{
			identityCommand(),
			importCommand(),
			showCommand(),
			acquireCommand(),
			releaseCommand(),
			setCommand(),
			clearCommand(),
			presenceCommand(),
			watchCommand(),
			onlineCommand(),
			devicesCommand(),
			whoamiCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Printf("corkboard %s\n", version.Full())
			return nil
		},
	}
}
