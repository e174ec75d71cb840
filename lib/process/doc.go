// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Corkboard
// binaries: fatal error reporting before the structured logger exists,
// construction of that logger from configuration, and the signal
// context main() runs under.
package process
