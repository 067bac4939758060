// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// installSecretFileName is the 0600 file holding the per-install secret
// on platforms without an OS keychain.
const installSecretFileName = "install.secret"

// keychainService is the macOS Keychain service name under which the
// per-install secret is stored.
const keychainService = "primordial-vault"

// loadOrCreateInstallSecret returns the per-install secret for this
// vault directory, creating it on first use. On Darwin it is backed by
// the login keychain via the security(1) CLI; a keychain error aborts
// rather than falling back to a plaintext file. Elsewhere it is a 0600
// file created with O_EXCL under dir.
func loadOrCreateInstallSecret(dir string) ([]byte, error) {
	if runtime.GOOS == "darwin" {
		return loadOrCreateKeychainSecret(dir)
	}
	return loadOrCreateFileSecret(dir)
}

func loadOrCreateFileSecret(dir string) ([]byte, error) {
	path := filepath.Join(dir, installSecretFileName)

	if info, err := os.Stat(path); err == nil {
		if info.Mode().Perm() != 0o600 {
			return nil, &PermissionTooOpenError{Path: path, Mode: info.Mode().Perm().String(), Want: "0600"}
		}
		return os.ReadFile(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("vault: stating install secret: %w", err)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("vault: generating install secret: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vault: creating install secret file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(secretBytes); err != nil {
		return nil, fmt.Errorf("vault: writing install secret: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("vault: syncing install secret: %w", err)
	}

	return secretBytes, nil
}

// loadOrCreateKeychainSecret uses the security(1) CLI to read or
// create a generic password item. Any failure to read the item is
// treated as a missing item and a new one is created; a failure to
// create it is a KeychainUnavailableError — there is no fallback to a
// plaintext file.
func loadOrCreateKeychainSecret(dir string) ([]byte, error) {
	account := filepath.Base(dir)

	read := exec.Command("security", "find-generic-password", "-s", keychainService, "-a", account, "-w")
	output, err := read.Output()
	if err == nil {
		return hex.DecodeString(strings.TrimSpace(string(output)))
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("vault: generating install secret: %w", err)
	}

	add := exec.Command("security", "add-generic-password",
		"-s", keychainService, "-a", account, "-w", hex.EncodeToString(secretBytes))
	if err := add.Run(); err != nil {
		return nil, &KeychainUnavailableError{Reason: err.Error()}
	}

	return secretBytes, nil
}
