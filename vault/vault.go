// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/primordial-run/primordial/lib/codec"
	"github.com/primordial-run/primordial/lib/config"
	"github.com/primordial-run/primordial/lib/machineid"
	"github.com/primordial-run/primordial/lib/secret"
)

// Vault is a single-writer, single-reader-per-process encrypted
// key-value store of provider secrets, bound to this machine. Callers
// must not share a *Vault across goroutines without external
// synchronization beyond what Vault itself provides — it serializes
// its own operations with an internal mutex, but that only protects
// the in-memory entry list and the on-disk file, not the intent behind
// concurrent calls.
type Vault struct {
	mu   sync.Mutex
	path string

	key        []byte
	iterations int
	salt       [saltSize]byte
	factor     machineid.ID

	entries []entry
}

// Options configures Open.
type Options struct {
	// Passphrase is the optional third key-derivation factor. Read
	// from PRIMORDIAL_VAULT_PASSPHRASE by OpenDefault if empty.
	Passphrase string

	// Iterations overrides the PBKDF2 iteration count for a newly
	// created vault. Ignored when opening an existing vault (its
	// header's recorded count is used instead). Zero, or any value
	// below MinIterations, means MinIterations.
	Iterations int
}

// OpenDefault opens or creates the vault at path using the
// PRIMORDIAL_VAULT_PASSPHRASE environment variable as the optional
// third factor.
func OpenDefault(path string) (*Vault, error) {
	return Open(path, Options{Passphrase: os.Getenv("PRIMORDIAL_VAULT_PASSPHRASE")})
}

// OpenFromConfig opens or creates the vault at cfg.VaultDir's vault
// file, the same way OpenDefault does, but takes its path from loaded
// configuration rather than a literal argument. This is the entry point
// for a caller that has already resolved PRIMORDIAL_CONFIG via
// [config.Load] or [config.LoadFile].
func OpenFromConfig(cfg *config.Config) (*Vault, error) {
	if err := cfg.EnsureVaultDir(); err != nil {
		return nil, err
	}
	return OpenDefault(filepath.Join(cfg.VaultDir, "vault"))
}

// Open opens the vault file at path, creating an empty one if it does
// not exist. The parent directory must already exist and be mode 0700
// or stricter; Open does not create it.
func Open(path string, opts Options) (*Vault, error) {
	factor, err := machineid.Identify()
	if err != nil {
		return nil, fmt.Errorf("vault: identifying machine: %w", err)
	}

	installSecret, err := loadOrCreateInstallSecret(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	defer secret.Zero(installSecret)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createEmpty(path, factor, installSecret, opts)
	} else if err != nil {
		return nil, fmt.Errorf("vault: stating %s: %w", path, err)
	}

	return load(path, factor, installSecret, opts.Passphrase)
}

func createEmpty(path string, factor machineid.ID, installSecret []byte, opts Options) (*Vault, error) {
	iterations := opts.Iterations
	if iterations < MinIterations {
		iterations = MinIterations
	}

	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("vault: generating salt: %w", err)
	}

	v := &Vault{
		path:       path,
		iterations: iterations,
		salt:       salt,
		factor:     factor,
		key:        deriveKey([]byte(factor.String()), installSecret, []byte(opts.Passphrase), salt[:], iterations),
	}

	if err := v.saveLocked(); err != nil {
		return nil, err
	}
	return v, nil
}

func load(path string, factor machineid.ID, installSecret []byte, passphrase string) (*Vault, error) {
	if err := checkStrictPermissions(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: reading %s: %w", path, err)
	}

	h, ciphertext, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	if h.machineFactor != factor.String() {
		return nil, &WrongMachineError{RecordedFactor: h.machineFactor, CurrentFactor: factor.String()}
	}
	if int(h.iterations) < MinIterations {
		return nil, &CorruptError{Reason: fmt.Sprintf("iteration count %d below minimum %d", h.iterations, MinIterations)}
	}

	key := deriveKey([]byte(factor.String()), installSecret, []byte(passphrase), h.salt[:], int(h.iterations))

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: constructing AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, h.nonce[:], ciphertext, nil)
	if err != nil {
		return nil, &CorruptError{Reason: "authentication failed"}
	}

	var entries []entry
	if len(plaintext) > 0 {
		if err := codec.Unmarshal(plaintext, &entries); err != nil {
			return nil, &CorruptError{Reason: "malformed entry list"}
		}
	}

	return &Vault{
		path:       path,
		iterations: int(h.iterations),
		salt:       h.salt,
		factor:     factor,
		key:        key,
		entries:    entries,
	}, nil
}

// saveLocked encrypts and writes the current entry list. Caller must
// hold v.mu.
func (v *Vault) saveLocked() error {
	plaintext, err := codec.Marshal(v.entries)
	if err != nil {
		return fmt.Errorf("vault: encoding entries: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("vault: constructing AEAD: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("vault: generating nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)

	h := &header{
		version:       headerVersion,
		iterations:    uint32(v.iterations),
		machineFactor: v.factor.String(),
		salt:          v.salt,
		nonce:         nonce,
	}

	data := append(h.encode(), ciphertext...)

	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("vault: creating parent directory: %w", err)
	}

	return writeFileAtomic(v.path, data, 0o600)
}

// Put replaces any existing entry for (provider, keyID) and persists
// immediately. Last write wins — Put is idempotent.
func (v *Vault) Put(providerName, keyID string, secretValue []byte) error {
	if keyID == "" {
		keyID = defaultKeyID
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now().UTC()
	found := false
	for i := range v.entries {
		if v.entries[i].Provider == providerName && v.entries[i].KeyID == keyID {
			v.entries[i].SecretValue = append([]byte(nil), secretValue...)
			v.entries[i].CreatedAt = now
			found = true
			break
		}
	}
	if !found {
		v.entries = append(v.entries, entry{
			Provider:    providerName,
			KeyID:       keyID,
			SecretValue: append([]byte(nil), secretValue...),
			CreatedAt:   now,
		})
	}

	return v.saveLocked()
}

// Get returns the secret for (provider, keyID) as a borrowed
// *secret.Buffer the caller must Close. Returns a *MissingKeyError if
// no such entry exists.
func (v *Vault) Get(providerName, keyID string) (*secret.Buffer, error) {
	if keyID == "" {
		keyID = defaultKeyID
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.entries {
		if v.entries[i].Provider == providerName && v.entries[i].KeyID == keyID {
			v.entries[i].LastUsed = time.Now().UTC()
			copyBytes := append([]byte(nil), v.entries[i].SecretValue...)
			if err := v.saveLocked(); err != nil {
				secret.Zero(copyBytes)
				return nil, err
			}
			return secret.NewFromBytes(copyBytes)
		}
	}

	return nil, &MissingKeyError{Provider: providerName, KeyID: keyID}
}

// List returns metadata for every entry. Secrets are never included.
func (v *Vault) List() []EntryInfo {
	v.mu.Lock()
	defer v.mu.Unlock()

	infos := make([]EntryInfo, len(v.entries))
	for i, e := range v.entries {
		infos[i] = EntryInfo{
			Provider:  e.Provider,
			KeyID:     e.KeyID,
			CreatedAt: e.CreatedAt,
			LastUsed:  e.LastUsed,
		}
	}
	return infos
}

// Remove deletes the entry for (provider, keyID), returning whether
// anything was removed.
func (v *Vault) Remove(providerName, keyID string) (bool, error) {
	if keyID == "" {
		keyID = defaultKeyID
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.entries {
		if v.entries[i].Provider == providerName && v.entries[i].KeyID == keyID {
			secret.Zero(v.entries[i].SecretValue)
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return true, v.saveLocked()
		}
	}
	return false, nil
}

// ManifestProviders is the minimal view ResolveFor needs of a manifest:
// the set of provider names it declares. Satisfied directly by
// *manifest.Manifest, keeping this package free of a direct
// dependency on manifest's types.
type ManifestProviders interface {
	DeclaredProviders() []string
}

// ResolveFor returns the subset of entries whose provider appears in
// m's declared providers, using the default key_id for each. A
// provider declared by the manifest but absent from the vault produces
// a *MissingKeyError for that provider; ResolveFor stops at the first
// missing required provider rather than silently omitting it.
//
// ResolveFor never returns an entry for a provider the manifest did
// not declare, even if the caller later looks it up by a different
// name — the returned map is already filtered.
func (v *Vault) ResolveFor(m ManifestProviders) (map[string]*secret.Buffer, error) {
	resolved := make(map[string]*secret.Buffer)

	for _, providerName := range m.DeclaredProviders() {
		buf, err := v.Get(providerName, defaultKeyID)
		if err != nil {
			for _, b := range resolved {
				b.Close()
			}
			return nil, err
		}
		resolved[providerName] = buf
	}

	return resolved, nil
}

// Close zeros the in-memory entry list's secret bytes. The vault file
// itself is untouched. Idempotent.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.entries {
		secret.Zero(v.entries[i].SecretValue)
	}
	v.entries = nil
}
