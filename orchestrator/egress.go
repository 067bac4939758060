// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/primordial-run/primordial/lib/provider"
	"github.com/primordial-run/primordial/manifest"
)

// packageRegistryDomains are auto-allowed whenever a manifest declares
// a setup_command, so pip/npm/etc. installs work without the manifest
// author having to enumerate every registry domain by hand.
var packageRegistryDomains = []string{
	"pypi.org",
	"files.pythonhosted.org",
	"registry.npmjs.org",
	"registry.yarnpkg.com",
	"nodejs.org",
}

// buildEgressPolicy constructs the egress policy CreateVM must
// enforce:
//
//   - network_unrestricted: true → Unrestricted, no domain filtering.
//   - Otherwise, deny 0.0.0.0/0 and allow the union of
//     permissions.allowed_domains, package registries (only if
//     setup_command is declared), and every known provider's pinned
//     domain for a provider that appears in the manifest. An unknown
//     provider's domain is never auto-allowed — it must appear in
//     allowed_domains explicitly.
//   - A manifest with neither network_unrestricted nor any domain
//     source ends up with DenyAll and an empty AllowedDomains: deny-all
//     egress.
func buildEgressPolicy(m *manifest.Manifest) EgressPolicy {
	if m.Permissions.NetworkUnrestricted {
		return EgressPolicy{Unrestricted: true}
	}

	seen := make(map[string]bool)
	var allowed []string
	add := func(domain string) {
		if domain == "" || seen[domain] {
			return
		}
		seen[domain] = true
		allowed = append(allowed, domain)
	}

	for _, d := range m.Permissions.AllowedDomains {
		add(d.Domain)
	}

	if m.SetupCommand != "" {
		for _, d := range packageRegistryDomains {
			add(d)
		}
	}

	for _, p := range m.Providers {
		if known, ok := provider.Lookup(p.Name); ok {
			add(known.Domain)
		}
		// An unknown provider's domain is never auto-allowed here:
		// it crosses the boundary only if the manifest author also
		// listed it under permissions.allowed_domains.
	}

	return EgressPolicy{DenyAll: true, AllowedDomains: allowed}
}
