// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawDocument mirrors Manifest's top level but captures providers and
// permissions as raw *yaml.Node instead of decoding them directly, so
// each can be re-decoded separately with strict field enforcement.
type rawDocument struct {
	Name         string     `yaml:"name"`
	Version      string     `yaml:"version"`
	RunCommand   string     `yaml:"run_command"`
	SetupCommand string     `yaml:"setup_command,omitempty"`
	Dependencies string     `yaml:"dependencies,omitempty"`
	Providers    *yaml.Node `yaml:"providers,omitempty"`
	Permissions  *yaml.Node `yaml:"permissions,omitempty"`
	Resources    ResourceLimits `yaml:"resources,omitempty"`
}

// parseStrict decodes raw into a Manifest. Top-level fields are
// decoded permissively (an unrecognized top-level key is ignored, for
// forward compatibility with future manifest versions); providers[]
// and permissions.* are re-decoded from their own nodes with
// KnownFields(true), so an unrecognized key there is a parse error
// rather than a silently ignored typo — this substructure is the
// proxy's and orchestrator's attack surface, so a misspelled field must
// not be allowed to fall back to an insecure default.
func parseStrict(raw []byte) (*Manifest, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	m := &Manifest{
		Name:         doc.Name,
		Version:      doc.Version,
		RunCommand:   doc.RunCommand,
		SetupCommand: doc.SetupCommand,
		Dependencies: doc.Dependencies,
		Resources:    doc.Resources,
	}

	if doc.Providers != nil {
		if err := decodeStrict(doc.Providers, &m.Providers); err != nil {
			return nil, fmt.Errorf("parsing manifest providers: %w", err)
		}
	}
	if doc.Permissions != nil {
		if err := decodeStrict(doc.Permissions, &m.Permissions); err != nil {
			return nil, fmt.Errorf("parsing manifest permissions: %w", err)
		}
	}

	return m, nil
}

// decodeStrict re-serializes node and decodes it into out with
// KnownFields(true). yaml.Node.Decode does not itself support strict
// mode, so the node is round-tripped through a decoder configured for
// it.
func decodeStrict(node *yaml.Node, out any) error {
	encoded, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(encoded))
	decoder.KnownFields(true)
	return decoder.Decode(out)
}
