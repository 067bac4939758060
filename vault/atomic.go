// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic writes data to path by creating a temp file in the
// same directory (so the final rename is on the same filesystem),
// writing, fsync'ing, then renaming over the target. A reader never
// observes a partially written vault file.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".vault-*.tmp")
	if err != nil {
		return fmt.Errorf("vault: creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(mode); err != nil {
		tmpFile.Close()
		return fmt.Errorf("vault: chmod temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("vault: writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("vault: syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("vault: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vault: renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}

// checkStrictPermissions verifies path is mode 0600 and its parent
// directory is mode 0700 or stricter, failing closed otherwise.
func checkStrictPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("vault: stating %s: %w", path, err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		return &PermissionTooOpenError{Path: path, Mode: mode.String(), Want: "0600"}
	}

	parent := filepath.Dir(path)
	parentInfo, err := os.Stat(parent)
	if err != nil {
		return fmt.Errorf("vault: stating %s: %w", parent, err)
	}
	if mode := parentInfo.Mode().Perm(); mode&^0o700 != 0 {
		return &PermissionTooOpenError{Path: parent, Mode: mode.String(), Want: "0700"}
	}

	return nil
}
