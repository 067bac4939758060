// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Primordial
// components.
//
// Configuration is loaded from a single file specified by either the
// PRIMORDIAL_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The configuration surface is deliberately narrow: vault directory,
// log level, and the timeouts the orchestrator and proxy use. Nothing
// security-relevant — the known-provider table, the protected
// environment-variable set, response header allowlists — is
// configurable; those are compiled in (see lib/provider) so a config
// file can never widen them.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with VaultDir, LogLevel, Timeouts
//   - [Default] -- returns a Config with sensible zero-values
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Primordial packages.
package config
