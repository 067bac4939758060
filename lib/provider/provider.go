// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"sort"
	"strings"
)

// AuthStyle names how a provider expects its credential presented on
// the upstream request.
type AuthStyle string

const (
	// AuthStyleBearer injects "Authorization: Bearer <secret>".
	AuthStyleBearer AuthStyle = "bearer"

	// AuthStyleXAPIKey injects "x-api-key: <secret>".
	AuthStyleXAPIKey AuthStyle = "x-api-key"
)

// Known describes one known provider's fixed upstream identity.
type Known struct {
	// Name is the lowercase provider key used in manifest provider
	// declarations, e.g. "anthropic".
	Name string

	// Domain is the real upstream host the proxy pins for this
	// provider. Never taken from a manifest.
	Domain string

	// BaseURLEnv is the environment variable an agent reads to find
	// the proxy's loopback base URL for this provider, e.g.
	// "ANTHROPIC_BASE_URL".
	BaseURLEnv string

	// AuthStyle is how the proxy re-injects the real secret on the
	// forwarded request.
	AuthStyle AuthStyle
}

// table is the immutable known-provider registry, built once in init
// and never mutated afterward.
var table map[string]Known

// fixedProtected is the compile-time set of protected environment
// variable names that exists independent of any provider.
var fixedProtected = []string{
	"PRIMORDIAL_SESSION_TOKEN",
}

func init() {
	entries := []Known{
		{Name: "anthropic", Domain: "api.anthropic.com", BaseURLEnv: "ANTHROPIC_BASE_URL", AuthStyle: AuthStyleXAPIKey},
		{Name: "openai", Domain: "api.openai.com", BaseURLEnv: "OPENAI_BASE_URL", AuthStyle: AuthStyleBearer},
		{Name: "google", Domain: "generativelanguage.googleapis.com", BaseURLEnv: "GOOGLE_BASE_URL", AuthStyle: AuthStyleBearer},
		{Name: "groq", Domain: "api.groq.com", BaseURLEnv: "GROQ_BASE_URL", AuthStyle: AuthStyleBearer},
		{Name: "mistral", Domain: "api.mistral.ai", BaseURLEnv: "MISTRAL_BASE_URL", AuthStyle: AuthStyleBearer},
		{Name: "deepseek", Domain: "api.deepseek.com", BaseURLEnv: "DEEPSEEK_BASE_URL", AuthStyle: AuthStyleBearer},
	}

	table = make(map[string]Known, len(entries))
	for _, entry := range entries {
		table[entry.Name] = entry
	}
}

// Lookup returns the known provider for name (case-insensitive) and
// whether it exists in the table.
func Lookup(name string) (Known, bool) {
	entry, ok := table[strings.ToLower(name)]
	return entry, ok
}

// DefaultEnvVar returns the conventional API-key environment variable
// name for a provider that doesn't declare one explicitly:
// "<PROVIDER>_API_KEY".
func DefaultEnvVar(providerName string) string {
	return normalizedUpper(providerName) + "_API_KEY"
}

// DefaultBaseURLEnv returns the conventional base-URL environment
// variable name for an unknown provider that doesn't declare one:
// "<PROVIDER>_BASE_URL".
func DefaultBaseURLEnv(providerName string) string {
	return normalizedUpper(providerName) + "_BASE_URL"
}

func normalizedUpper(providerName string) string {
	return strings.ToUpper(strings.ReplaceAll(providerName, "-", "_"))
}

// ProtectedEnvVars returns the full set of environment variable names
// no manifest provider entry may claim for itself: the fixed
// compile-time names plus every known provider's env_var (derived via
// DefaultEnvVar) and base_url_env. The set is rebuilt on each call
// since callers may hold onto the returned map and mutate it freely
// without affecting the table.
func ProtectedEnvVars() map[string]bool {
	protected := make(map[string]bool, len(fixedProtected)+2*len(table))
	for _, name := range fixedProtected {
		protected[name] = true
	}
	for name, known := range table {
		protected[DefaultEnvVar(name)] = true
		protected[known.BaseURLEnv] = true
	}
	return protected
}

// Names returns the known provider names in sorted order. Used by
// manifest validation to produce a stable, reproducible diagnostic
// listing when flagging an unrecognized provider.
func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
