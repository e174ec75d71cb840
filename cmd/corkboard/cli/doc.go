// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the corkboard CLI: a tree
// of [Command] values with pflag flag sets, generated help, and
// did-you-mean suggestions for mistyped commands and flags.
package cli
