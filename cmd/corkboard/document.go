// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/pflag"

	"github.com/corkboard-foundation/corkboard/cmd/corkboard/cli"
	"github.com/corkboard-foundation/corkboard/lib/importer"
)

// importBody validates a JSON or JSONC file locally and returns the
// JSON to upload. "-" reads stdin. A file without a title gets one from
// its name.
func importBody(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		doc, err := importer.Parse(data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	}

	doc, err := importer.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, ok := doc[importer.TitleKey].(string); !ok {
		doc[importer.TitleKey] = importer.NameFromPath(path)
	}
	return json.Marshal(doc)
}

// writeHighlightedJSON writes value as indented, syntax-highlighted
// JSON for a terminal.
func writeHighlightedJSON(w io.Writer, value any) error {
	var buffer bytes.Buffer
	if err := cli.WriteJSON(&buffer, value); err != nil {
		return err
	}
	if err := quick.Highlight(w, buffer.String(), "json", "terminal256", "monokai"); err != nil {
		_, err = w.Write(buffer.Bytes())
		return err
	}
	return nil
}

func importCommand() *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "import",
		Summary: "Create a document from a JSON or JSONC file",
		Usage:   "corkboard import [flags] FILE",
		Examples: []cli.Example{
			{Description: "Import a board", Command: "corkboard import roadmap.jsonc"},
			{Description: "Import from stdin", Command: "cat board.json | corkboard import -"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file, got %d arguments", len(args))
			}
			body, err := importBody(args[0], os.Stdin)
			if err != nil {
				return err
			}
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			doc, err := client.CreateDocument(ctx, body)
			if err != nil {
				return err
			}
			if done, err := output.Emit(map[string]string{"document": doc.String()}); done {
				return err
			}
			fmt.Println(doc)
			return nil
		},
	}
}

func showCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "show",
		Summary: "Print a document's content as JSON",
		Usage:   "corkboard show [flags] DOCUMENT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
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
			content, err := client.Document(ctx, doc)
			if err != nil {
				return err
			}
			if !cli.IsTerminal(os.Stdout) {
				return cli.WriteJSON(os.Stdout, content)
			}
			return writeHighlightedJSON(os.Stdout, content)
		},
	}
}
