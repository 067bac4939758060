// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import "github.com/primordial-run/primordial/lib/provider"

// ResolvedProvider is a manifest provider declaration with every
// defaultable field filled in, mirroring the resolution validate.go
// already performs inline when checking for collisions. The
// orchestrator builds routes from ResolvedProvider, never from the raw
// Provider struct, so a manifest that omits env_var/base_url_env/
// auth_style/domain still produces a complete route.
type ResolvedProvider struct {
	Name       string
	Domain     string
	AuthStyle  AuthStyle
	EnvVar     string
	BaseURLEnv string
}

// DeclaredProviders returns the manifest's provider names in
// declaration order. Satisfies vault.ManifestProviders, letting the
// orchestrator pass a *Manifest directly to vault.ResolveFor without
// vault importing this package.
func (m *Manifest) DeclaredProviders() []string {
	names := make([]string, len(m.Providers))
	for i, p := range m.Providers {
		names[i] = p.Name
	}
	return names
}

// Resolve fills in every defaultable field of p using the known-
// provider table: a known provider's pinned domain and auth style
// always win over a manifest override (validate.go does not check a
// known provider's declared domain, so such an override is ignored
// here rather than rejected; Resolve assumes p came from a validated
// Manifest).
func (p Provider) Resolve() ResolvedProvider {
	known, isKnown := provider.Lookup(p.Name)

	r := ResolvedProvider{
		Name:       p.Name,
		Domain:     p.Domain,
		AuthStyle:  p.AuthStyle,
		EnvVar:     p.EnvVar,
		BaseURLEnv: p.BaseURLEnv,
	}

	if isKnown {
		r.Domain = known.Domain
		r.AuthStyle = AuthStyle(known.AuthStyle)
	}
	if r.AuthStyle == "" {
		r.AuthStyle = AuthStyleBearer
	}
	if r.EnvVar == "" {
		r.EnvVar = provider.DefaultEnvVar(p.Name)
	}
	if r.BaseURLEnv == "" {
		r.BaseURLEnv = provider.DefaultBaseURLEnv(p.Name)
	}

	return r
}

// ResolvedProviders returns every declared provider with defaults
// filled in, in declaration order.
func (m *Manifest) ResolvedProviders() []ResolvedProvider {
	resolved := make([]ResolvedProvider, len(m.Providers))
	for i, p := range m.Providers {
		resolved[i] = p.Resolve()
	}
	return resolved
}
