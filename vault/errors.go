// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MissingKeyError is returned by Get and ResolveFor when a requested
// (provider, key_id) has no entry, or when ResolveFor can't satisfy a
// provider the manifest declares.
type MissingKeyError struct {
	Provider string
	KeyID    string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("vault: no key for provider %q key_id %q", e.Provider, e.KeyID)
}

// CorruptError means the vault file's header or ciphertext failed to
// parse or authenticate. Never includes ciphertext or secret bytes.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("vault: corrupt (%s)", e.Reason)
}

// WrongMachineError means the vault header's recorded machine-factor
// does not match the current host's. The vault was created on a
// different machine, or the factor source changed (OS reinstall,
// hardware replacement).
type WrongMachineError struct {
	RecordedFactor string
	CurrentFactor  string
}

func (e *WrongMachineError) Error() string {
	return fmt.Sprintf("vault: bound to a different machine (recorded factor %s, current %s)",
		factorFingerprint(e.RecordedFactor), factorFingerprint(e.CurrentFactor))
}

// factorFingerprint reports a short, non-reversible fingerprint of a raw
// machine factor (machine-id contents, hardware UUID, or hostname+MAC)
// instead of the value itself, so error text never carries
// machine-identifying material.
func factorFingerprint(factor string) string {
	if factor == "" {
		return "(empty)"
	}
	sum := sha256.Sum256([]byte(factor))
	return hex.EncodeToString(sum[:6])
}

// PermissionTooOpenError means the vault file or its parent directory
// has a mode wider than the required 0600/0700.
type PermissionTooOpenError struct {
	Path string
	Mode string
	Want string
}

func (e *PermissionTooOpenError) Error() string {
	return fmt.Sprintf("vault: %s has mode %s, want %s or stricter", e.Path, e.Mode, e.Want)
}

// KeychainUnavailableError means the OS keychain is present but refused
// to produce or store the per-install secret. This is fatal — the vault
// never silently downgrades to a weaker secret source.
type KeychainUnavailableError struct {
	Reason string
}

func (e *KeychainUnavailableError) Error() string {
	return fmt.Sprintf("vault: keychain unavailable (%s)", e.Reason)
}
