// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/corkboard-foundation/corkboard/lib/api"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

const defaultAPIAddress = "http://127.0.0.1:7420"

// requestTimeout bounds one-shot API calls. Streaming commands run until
// interrupted.
const requestTimeout = 10 * time.Second

// connection holds the flags shared by every command that talks to a
// peer.
type connection struct {
	Address string
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	address := os.Getenv("CORKBOARD_API")
	if address == "" {
		address = defaultAPIAddress
	}
	flagSet.StringVar(&c.Address, "api", address, "base URL of the peer's API ($CORKBOARD_API)")
}

// client returns an API client. Streaming callers pass stream=true to
// get a client without the per-request timeout.
func (c *connection) client(stream bool) (*api.Client, error) {
	httpClient := &http.Client{Timeout: requestTimeout}
	if stream {
		httpClient = &http.Client{}
	}
	return api.NewClient(c.Address, httpClient)
}

// facetFlag registers --facet, defaulting to the root facet.
func facetFlag(flagSet *pflag.FlagSet, target *string) {
	flagSet.StringVarP(target, "facet", "f", string(ref.FacetRoot), "facet key")
}

// documentArg parses the single document argument.
func documentArg(args []string, extra int) (ref.DocumentID, error) {
	if len(args) != 1+extra {
		if extra == 0 {
			return ref.DocumentID{}, fmt.Errorf("expected exactly one document ID, got %d arguments", len(args))
		}
		return ref.DocumentID{}, fmt.Errorf("expected a document ID and %d more arguments, got %d arguments", extra, len(args))
	}
	doc, err := ref.ParseDocumentID(args[0])
	if err != nil {
		return ref.DocumentID{}, err
	}
	return doc, nil
}
