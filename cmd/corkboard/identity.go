// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/corkboard-foundation/corkboard/cmd/corkboard/cli"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// generatedIdentity is the identity block of corkboard.yaml.
type generatedIdentity struct {
	Contact string `yaml:"contact" json:"contact"`
	Device  string `yaml:"device" json:"device"`
}

// newIdentity mints a contact and a device ID. With an existing contact
// only the device is new, for adding a second device of the same user.
func newIdentity(existingContact string) (generatedIdentity, error) {
	var contact ref.ContactID
	if existingContact != "" {
		parsed, err := ref.ParseContactID(existingContact)
		if err != nil {
			return generatedIdentity{}, fmt.Errorf("--contact: %w", err)
		}
		contact = parsed
	} else {
		nonce := uuid.New()
		contact = ref.ContactFromDocument(ref.NewDocumentID(nonce[:]))
	}
	nonce := uuid.New()
	device := ref.DeviceFromDocument(ref.NewDocumentID(nonce[:]))
	return generatedIdentity{Contact: contact.String(), Device: device.String()}, nil
}

func writeIdentityYAML(w io.Writer, identity generatedIdentity) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(map[string]generatedIdentity{"identity": identity}); err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	return encoder.Close()
}

func identityCommand() *cli.Command {
	var (
		contact string
		output  cli.JSONOutput
	)
	return &cli.Command{
		Name:    "identity",
		Summary: "Generate a contact and device identity",
		Description: `Generate a new identity and print it as a corkboard.yaml snippet.

Each user has one contact ID shared by all of their devices, and each
device has its own device ID. Pass --contact to mint a device for an
existing user.`,
		Examples: []cli.Example{
			{Description: "First device", Command: "corkboard identity >> corkboard.yaml"},
			{Description: "Second device of the same user", Command: "corkboard identity --contact doc_..."},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("identity", pflag.ContinueOnError)
			flagSet.StringVar(&contact, "contact", "", "reuse this contact ID and mint only a device")
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			identity, err := newIdentity(contact)
			if err != nil {
				return err
			}
			if done, err := output.Emit(identity); done {
				return err
			}
			return writeIdentityYAML(os.Stdout, identity)
		},
	}
}

func whoamiCommand() *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the peer's configured identity",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			client, err := conn.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			identity, err := client.Identity(ctx)
			if err != nil {
				return err
			}
			if done, err := output.Emit(identity); done {
				return err
			}
			if identity.Contact == nil {
				fmt.Println("no identity configured")
				return nil
			}
			fmt.Printf("contact: %s\ndevice:  %s\n", identity.Contact, identity.Device)
			return nil
		},
	}
}
