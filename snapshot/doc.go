// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot packs and restores the durable slice of an agent's
// home directory between sessions.
//
// Only four subdirectories ever cross the boundary: workspace, data,
// output, state. Everything else in the agent's home — dotfiles,
// shell history, planted binaries — is excluded by construction, not
// by a denylist that could miss something new.
//
// Pack produces a gzipped tar; Unpack restores one through a safe
// extraction filter that rejects absolute paths, parent-directory
// traversal, and symlink or hardlink members outright. Any rejected
// member fails the whole restore — Unpack never leaves a partially
// extracted tree behind.
//
// Both operations accept an optional age keypair to seal the packed
// bytes at rest; callers without a vault can omit it and get a plain
// gzipped tar.
package snapshot

// AllowedDirs is the fixed set of agent-home subdirectories persisted
// across sessions. Order is significant only for Pack's deterministic
// member ordering.
var AllowedDirs = []string{"workspace", "data", "output", "state"}

func isAllowedDir(name string) bool {
	for _, d := range AllowedDirs {
		if d == name {
			return true
		}
	}
	return false
}
