// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"

	"github.com/primordial-run/primordial/lib/codec"
	"github.com/primordial-run/primordial/lib/sealed"
)

// ExportEscrow re-encrypts the current entry list to one or more
// operator-supplied age recipient public keys, independent of the
// vault's machine-bound symmetric format. The result is a standalone
// age-armored bundle: it carries no dependency on this machine's
// factor, install secret, or passphrase, so it can be decrypted with
// the matching private key on any host. Intended for operator-initiated
// backup or key-recovery escrow, not for routine use.
//
// ExportEscrow requires at least one recipient and validates each
// public key before touching the entry list, so a typo in a recipient
// key fails before any plaintext is ever marshaled.
func (v *Vault) ExportEscrow(recipients []string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("vault: ExportEscrow requires at least one recipient")
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return nil, fmt.Errorf("vault: invalid escrow recipient %q: %w", recipient, err)
		}
	}

	v.mu.Lock()
	plaintext, err := codec.Marshal(v.entries)
	v.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("vault: encoding entries for escrow: %w", err)
	}

	armored, err := sealed.Encrypt(plaintext, recipients)
	if err != nil {
		return nil, fmt.Errorf("vault: sealing escrow bundle: %w", err)
	}

	return []byte(armored), nil
}
