// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import "strings"

// shellQuote returns a shell-safe quoted version of s. Strings made
// entirely of safe characters are returned unquoted for readability;
// anything else is single-quoted with internal single quotes escaped.
// Used to quote paths and arguments interpolated into the shell
// scripts the orchestrator runs inside the VM (tar extraction,
// hardening, state capture), so a value containing shell
// metacharacters cannot inject additional commands.
func shellQuote(s string) string {
	if s != "" && isShellSafeString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafeString(s string) bool {
	for _, r := range s {
		if !isShellSafeRune(r) {
			return false
		}
	}
	return true
}

func isShellSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '-', '_', '.', '/', ':', '=':
		return true
	}
	return false
}
