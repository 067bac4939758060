// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package machineid resolves a stable per-machine identifier used as one
// of the three factors the vault's key derivation binds to.
//
// [Identify] tries, in order, a Linux D-Bus machine ID file, a macOS
// IOPlatformUUID lookup, and finally a hostname+MAC fallback that works
// on any platform. The returned [ID] carries both the resolved value and
// a [Factor] tag recording which source produced it, so a vault header
// can detect that the underlying factor changed (a different machine, a
// reinstalled OS) even if by coincidence the two fallback strings
// collide.
package machineid
