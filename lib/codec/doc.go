// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides this module's standard CBOR encoding
// configuration.
//
// Two serialization formats are in use with a clear boundary:
//
//   - JSON for the one deliberately stdlib-only external interface: the
//     orchestrator's stdin handoff to the in-sandbox proxy, which cannot
//     depend on this package since the proxy binary ships with zero
//     third-party dependencies.
//   - CBOR for vault data: the entry list encrypted at rest, and the
//     entry list sealed into an escrow bundle.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every CBOR-using package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations (files, tokens):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, pipes):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR — vault
//     entries.
//   - `yaml` tag: this type is config-shaped and only ever parsed from
//     YAML — the manifest and its nested structs.
//
// Never mix `cbor` and `yaml` tags on the same field. The tag choice
// documents the contract — doubling up is noise that obscures which
// format a type actually participates in.
package codec
