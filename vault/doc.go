// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault implements the encrypted, machine-bound at-rest store of
// provider API keys.
//
// A vault file is a short fixed header (magic, version, machine-factor
// tag, salt, KDF iteration count, AEAD nonce) followed by
// XChaCha20-Poly1305 ciphertext of a CBOR-encoded entry list. The
// decryption key is derived with PBKDF2-HMAC-SHA256 over three factors —
// a machine identifier, a per-install secret, and an optional
// passphrase — so a copy of the file is useless on any other machine or
// without the same local secret.
//
// Every [Open] re-verifies that the vault file is mode 0600 and its
// parent directory is mode 0700, refusing to proceed otherwise. Every
// write goes through a temp-file-in-the-same-directory, fsync, rename
// sequence so a reader never observes a partially written file.
//
// Secrets leave this package only as [secret.Buffer] values, borrowed by
// the caller and never copied into a plain []byte or string at this
// layer.
package vault
