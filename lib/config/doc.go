// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Corkboard peers.
//
// Configuration is loaded from a single file specified by either the
// CORKBOARD_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production logs JSON unless its
// section says otherwise.
//
// Variable expansion is performed on store.path after loading:
// ${VAR} and ${VAR:-default} patterns are expanded from the process
// environment. No other environment variables override config values,
// with one exception: CORKBOARD_DEBUG forces [Config.LogLevel] to debug.
//
// Key exports:
//
//   - [Config] -- master struct with Identity, Presence, Transport, Store, API, Log
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
package config
