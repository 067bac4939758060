// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses and strictly validates an agent's declaration
// of the providers it needs keys for, the domains it wants to reach, and
// the permissions it asks for.
//
// [Validate] never stops at the first problem: every violation is
// collected into a single [ValidationError] so an author sees the whole
// list of fixes needed in one pass, the way a form validator reports
// every invalid field at once rather than one at a time.
//
// Validation has no network or filesystem side effects beyond the
// optional dependencies-file existence check in [Load]; [Validate]
// itself only inspects the bytes it is given.
package manifest
