// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and validates the manifest at path. If path is a
// directory, "agent.yaml" under it is read instead. There is no
// discovery beyond that and no environment-variable override of
// manifest content — the file at path is the single source of truth,
// mirroring lib/config.LoadFile.
//
// If Dependencies is set, Load also checks that the referenced file
// exists relative to the manifest's directory; Validate alone cannot
// do this since it has no filesystem access.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	agentDir := filepath.Dir(path)
	if info.IsDir() {
		agentDir = path
		path = filepath.Join(path, "agent.yaml")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	m, validationErr := Validate(raw)
	if validationErr != nil {
		return nil, validationErr
	}

	if m.Dependencies != "" {
		depsPath := filepath.Join(agentDir, m.Dependencies)
		if _, err := os.Stat(depsPath); err != nil {
			return nil, fmt.Errorf("manifest: dependencies file not found: %s", depsPath)
		}
	}

	return m, nil
}
