// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider holds the fixed, process-wide table of known LLM API
// providers the in-sandbox proxy and the orchestrator trust by name.
//
// The table is populated once at init and never mutated afterward. It is
// the only source the orchestrator consults for a known provider's real
// upstream domain — a manifest's own domain declaration for a known
// provider name is discarded, not merged, so a malicious or careless
// manifest cannot redirect that provider's traffic (and its real secret)
// to an attacker-controlled host by declaring a different domain under
// the same provider name.
//
// [ProtectedEnvVars] returns the set of environment variable names no
// manifest may claim: a small set of fixed names plus every known
// provider's env_var and base_url_env. This defeats a manifest declaring
// an unknown provider that happens to pick a name like ANTHROPIC_API_KEY.
package provider
