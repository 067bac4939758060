// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

// AuthStyle is either the reserved bearer token style or a custom
// header name.
type AuthStyle string

// AuthStyleBearer is the reserved value meaning "Authorization: Bearer
// <key>" rather than a custom header.
const AuthStyleBearer AuthStyle = "bearer"

// Provider identifies one upstream API the agent wants to call through
// the credential proxy.
type Provider struct {
	Name        string    `yaml:"name"`
	Domain      string    `yaml:"domain,omitempty"`
	AuthStyle   AuthStyle `yaml:"auth_style,omitempty"`
	EnvVar      string    `yaml:"env_var,omitempty"`
	BaseURLEnv  string    `yaml:"base_url_env,omitempty"`
}

// AllowedDomain is one entry in the manifest's network allowlist, with
// a free-text justification required for review.
type AllowedDomain struct {
	Domain string `yaml:"domain"`
	Reason string `yaml:"reason"`
}

// FilesystemMode controls what the agent's workspace directory allows.
type FilesystemMode string

const (
	FilesystemNone      FilesystemMode = "none"
	FilesystemReadonly  FilesystemMode = "readonly"
	FilesystemReadwrite FilesystemMode = "readwrite"
)

// Filesystem declares the agent's workspace access mode.
type Filesystem struct {
	Workspace FilesystemMode `yaml:"workspace,omitempty"`
}

// Delegation declares whether this agent may invoke other agents, and
// which ones. allowed_agents is a set of opaque identifiers this
// package does not interpret.
type Delegation struct {
	Enabled       bool     `yaml:"enabled,omitempty"`
	AllowedAgents []string `yaml:"allowed_agents,omitempty"`
}

// Permissions groups the declarations that shape the orchestrator's
// egress policy and filesystem/delegation posture.
type Permissions struct {
	AllowedDomains        []AllowedDomain `yaml:"allowed_domains,omitempty"`
	NetworkUnrestricted   bool            `yaml:"network_unrestricted,omitempty"`
	Filesystem            Filesystem      `yaml:"filesystem,omitempty"`
	Delegation            Delegation      `yaml:"delegation,omitempty"`
}

// ResourceLimits are advisory. They are parsed from the manifest but
// not passed to the VM provider, and this module never enforces them.
type ResourceLimits struct {
	MaxMemory string `yaml:"max_memory,omitempty"`
	MaxCPU    int    `yaml:"max_cpu,omitempty"`
}

// Manifest is one agent's validated declaration. Unknown top-level
// fields are ignored on parse (forward-compatible); fields inside
// Providers and Permissions are strictly checked (unknown keys there
// are a validation error, since that substructure is the proxy's and
// orchestrator's attack surface).
type Manifest struct {
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	RunCommand    string         `yaml:"run_command"`
	SetupCommand  string         `yaml:"setup_command,omitempty"`
	Dependencies  string         `yaml:"dependencies,omitempty"`
	Providers     []Provider     `yaml:"providers,omitempty"`
	Permissions   Permissions    `yaml:"permissions,omitempty"`
	Resources     ResourceLimits `yaml:"resources,omitempty"`
}
