// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/primordial-run/primordial/lib/provider"
)

// namePattern matches agent names: 3-40 chars, lowercase, digits,
// hyphens, must start with a letter.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// providerNamePattern matches provider identifiers: lowercase letters,
// digits, hyphens, no underscores (so the uppercase-snake env-var
// derivation is unambiguous).
var providerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// domainPattern requires at least one dot and at least one letter,
// rejecting IP literals and single-label hosts.
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// customAuthHeaderPattern matches a custom auth_style header name.
var customAuthHeaderPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// envVarPattern matches environment variable names: uppercase letters,
// digits, underscores, must start with a letter.
var envVarPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// fixedProtectedNames are host-critical environment variables no
// manifest may ever claim, independent of any known-provider table.
var fixedProtectedNames = map[string]bool{
	"PATH": true, "HOME": true, "SHELL": true, "LANG": true,
	"LD_PRELOAD": true, "LD_LIBRARY_PATH": true,
	"PYTHONPATH": true, "NODE_PATH": true, "TERM": true, "TZ": true,
	"USER": true, "LC_ALL": true, "LC_CTYPE": true,
}

// protectedPrefixes covers families of names rather than exact
// matches, e.g. every DYLD_* variable on Darwin.
var protectedPrefixes = []string{"DYLD_"}

// Validate checks raw manifest bytes and returns the parsed Manifest
// together with every violation found, batched into one
// *ValidationError. A non-nil *ValidationError means manifest is
// unusable even if partially populated; callers must check for it
// before using the returned Manifest.
func Validate(raw []byte) (*Manifest, *ValidationError) {
	errs := &ValidationError{}

	m, parseErr := parseStrict(raw)
	if parseErr != nil {
		errs.add("(document)", parseErr.Error())
		return nil, errs
	}

	validateName(m, errs)
	validateRunCommand(m, errs)
	validateProviders(m, errs)
	validatePermissions(m, errs)
	validateCollisions(m, errs)

	if len(errs.Fields) > 0 {
		return nil, errs
	}
	return m, nil
}

func validateName(m *Manifest, errs *ValidationError) {
	if len(m.Name) < 3 || len(m.Name) > 40 {
		errs.add("name", "must be 3-40 characters")
		return
	}
	if !namePattern.MatchString(m.Name) {
		errs.add("name", "must match ^[a-z][a-z0-9-]*$")
	}
}

func validateRunCommand(m *Manifest, errs *ValidationError) {
	if strings.TrimSpace(m.RunCommand) == "" {
		errs.add("run_command", "is required")
	}
}

func validateProviders(m *Manifest, errs *ValidationError) {
	for index, p := range m.Providers {
		prefix := fmt.Sprintf("providers[%d]", index)

		if p.Name == "" {
			errs.add(prefix+".name", "is required")
			continue
		}
		if !providerNamePattern.MatchString(p.Name) {
			errs.add(prefix+".name", "must match ^[a-z][a-z0-9-]*$")
		}

		known, isKnown := provider.Lookup(p.Name)

		if p.Domain != "" && !isKnown {
			if !domainPattern.MatchString(p.Domain) {
				errs.add(prefix+".domain", "must be a fully qualified domain name")
			}
		}

		if p.AuthStyle != "" && p.AuthStyle != AuthStyleBearer {
			if !customAuthHeaderPattern.MatchString(string(p.AuthStyle)) {
				errs.add(prefix+".auth_style", "must be \"bearer\" or match ^[a-z][a-z0-9-]*$")
			}
		}

		envVar := p.EnvVar
		if envVar == "" {
			envVar = provider.DefaultEnvVar(p.Name)
		} else if !envVarPattern.MatchString(envVar) {
			errs.add(prefix+".env_var", "must match ^[A-Z][A-Z0-9_]*$")
		}

		baseURLEnv := p.BaseURLEnv
		if baseURLEnv == "" {
			baseURLEnv = provider.DefaultBaseURLEnv(p.Name)
		} else if !envVarPattern.MatchString(baseURLEnv) {
			errs.add(prefix+".base_url_env", "must match ^[A-Z][A-Z0-9_]*$")
		}

		if isProtected(envVar) && !(isKnown && envVar == provider.DefaultEnvVar(known.Name)) {
			errs.add(prefix+".env_var", fmt.Sprintf("%q is a protected environment variable", envVar))
		}
		if isProtected(baseURLEnv) && !(isKnown && baseURLEnv == known.BaseURLEnv) {
			errs.add(prefix+".base_url_env", fmt.Sprintf("%q is a protected environment variable", baseURLEnv))
		}
	}
}

func validatePermissions(m *Manifest, errs *ValidationError) {
	for index, d := range m.Permissions.AllowedDomains {
		prefix := fmt.Sprintf("permissions.allowed_domains[%d]", index)
		if d.Domain == "" {
			errs.add(prefix+".domain", "is required")
		} else if !domainPattern.MatchString(d.Domain) {
			errs.add(prefix+".domain", "must be a fully qualified domain name")
		}
		if strings.TrimSpace(d.Reason) == "" {
			errs.add(prefix+".reason", "is required")
		}
	}

	switch m.Permissions.Filesystem.Workspace {
	case "", FilesystemNone, FilesystemReadonly, FilesystemReadwrite:
	default:
		errs.add("permissions.filesystem.workspace", "must be one of: none, readonly, readwrite")
	}
}

// validateCollisions scans env_var and base_url_env across all
// providers, reporting every duplicate together with the index of the
// provider that first claimed the name.
func validateCollisions(m *Manifest, errs *ValidationError) {
	envVarSeen := make(map[string]int, len(m.Providers))
	baseURLSeen := make(map[string]int, len(m.Providers))

	for index, p := range m.Providers {
		envVar := p.EnvVar
		if envVar == "" {
			envVar = provider.DefaultEnvVar(p.Name)
		}
		if firstIndex, exists := envVarSeen[envVar]; exists {
			errs.add(fmt.Sprintf("providers[%d].env_var", index),
				fmt.Sprintf("%q duplicates providers[%d].env_var", envVar, firstIndex))
		} else {
			envVarSeen[envVar] = index
		}

		baseURLEnv := p.BaseURLEnv
		if baseURLEnv == "" {
			baseURLEnv = provider.DefaultBaseURLEnv(p.Name)
		}
		if firstIndex, exists := baseURLSeen[baseURLEnv]; exists {
			errs.add(fmt.Sprintf("providers[%d].base_url_env", index),
				fmt.Sprintf("%q duplicates providers[%d].base_url_env", baseURLEnv, firstIndex))
		} else {
			baseURLSeen[baseURLEnv] = index
		}
	}
}

func isProtected(name string) bool {
	if fixedProtectedNames[name] {
		return true
	}
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return provider.ProtectedEnvVars()[name]
}
