// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// MinIterations is the lowest PBKDF2 iteration count this package will
// accept when deriving a key. Configuring a new vault with a higher
// count is fine; loading a vault whose header claims fewer is treated
// as corruption, since it would mean the header was tampered with to
// weaken the KDF.
const MinIterations = 600_000

// factorSeparator joins the three key-material factors. A non-printable
// byte is used instead of Python's literal ':' so no factor's own
// content can be mistaken for a separator.
const factorSeparator = 0x1f

// chacha20poly1305KeySize is XChaCha20-Poly1305's key length.
const chacha20poly1305KeySize = 32

func sha256New() hash.Hash {
	return sha256.New()
}

// deriveKey runs PBKDF2-HMAC-SHA256 over the three joined factors.
func deriveKey(machineID, installSecret, passphrase []byte, salt []byte, iterations int) []byte {
	material := make([]byte, 0, len(machineID)+len(installSecret)+len(passphrase)+2)
	material = append(material, machineID...)
	material = append(material, factorSeparator)
	material = append(material, installSecret...)
	material = append(material, factorSeparator)
	material = append(material, passphrase...)

	return pbkdf2.Key(material, salt, iterations, chacha20poly1305KeySize, sha256New)
}
