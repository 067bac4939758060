// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "time"

// entry is one plaintext vault record, as serialized into the
// CBOR-encoded payload before encryption. SecretValue holds the raw
// secret bytes only transiently, during encode/decode — callers never
// see this type directly; they get a *secret.Buffer from Get/ResolveFor
// and an EntryInfo (no secret) from List.
type entry struct {
	Provider    string    `cbor:"provider"`
	KeyID       string    `cbor:"key_id"`
	SecretValue []byte    `cbor:"secret_value"`
	CreatedAt   time.Time `cbor:"created_at"`
	LastUsed    time.Time `cbor:"last_used,omitempty"`
}

// EntryInfo describes one vault entry without revealing its secret.
// Returned by List.
type EntryInfo struct {
	Provider  string
	KeyID     string
	CreatedAt time.Time
	LastUsed  time.Time
}

// defaultKeyID is used when a caller does not specify one.
const defaultKeyID = "default"
