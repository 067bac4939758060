// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/primordial-run/primordial/lib/sealed"
)

// safeMember is one tar entry that has already passed every rejection
// check and carries its content in memory, ready to extract.
type safeMember struct {
	relPath string
	header  *tar.Header
	content []byte
}

// Unpack restores data (produced by Pack) into homeDir. Every member
// is validated before any member is extracted: an absolute path, a
// ".." path component, a symlink, or a hardlink anywhere in the
// archive fails the whole operation and homeDir is left untouched.
// A member outside the four allowlisted subdirectories is rejected
// the same way — Pack never emits one, so its presence means the
// archive was tampered with or came from an untrusted source.
func Unpack(data []byte, homeDir string, opts Options) error {
	if len(opts.Recipients) != 0 {
		return fmt.Errorf("snapshot: Unpack does not take Recipients, use PrivateKey")
	}

	raw := data
	if opts.PrivateKey != nil {
		plaintext, err := sealed.Decrypt(string(data), opts.PrivateKey)
		if err != nil {
			return fmt.Errorf("snapshot: unsealing packed state: %w", err)
		}
		defer plaintext.Close()
		raw = plaintext.Bytes()
	}

	members, err := readSafeMembers(raw)
	if err != nil {
		return err
	}

	for _, m := range members {
		if err := extractMember(homeDir, m); err != nil {
			return err
		}
	}
	return nil
}

func readSafeMembers(raw []byte) ([]safeMember, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var members []safeMember

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: reading tar stream: %w", err)
		}

		relPath, err := validateMemberName(hdr.Name)
		if err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg:
		case tar.TypeSymlink, tar.TypeLink:
			return nil, fmt.Errorf("snapshot: rejecting %s: symlink and hardlink members are not allowed", hdr.Name)
		default:
			return nil, fmt.Errorf("snapshot: rejecting %s: unsupported tar entry type", hdr.Name)
		}

		var content []byte
		if hdr.Typeflag == tar.TypeReg {
			content, err = io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("snapshot: reading content for %s: %w", hdr.Name, err)
			}
		}

		members = append(members, safeMember{relPath: relPath, header: hdr, content: content})
	}

	return members, nil
}

// validateMemberName rejects absolute paths, ".." components, and any
// member not rooted at one of the four allowlisted subdirectories. It
// returns the cleaned, slash-normalized relative path.
func validateMemberName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snapshot: rejecting empty tar member name")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("snapshot: rejecting %s: absolute paths are not allowed", name)
	}

	cleaned := filepath.ToSlash(filepath.Clean(name))
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return "", fmt.Errorf("snapshot: rejecting %s: parent-directory traversal is not allowed", name)
		}
	}

	top := strings.SplitN(cleaned, "/", 2)[0]
	if !isAllowedDir(top) {
		return "", fmt.Errorf("snapshot: rejecting %s: not rooted at an allowlisted subdirectory", name)
	}

	return cleaned, nil
}

func extractMember(homeDir string, m safeMember) error {
	dest := filepath.Join(homeDir, m.relPath)

	if m.header.Typeflag == tar.TypeDir {
		return os.MkdirAll(dest, os.FileMode(m.header.Mode).Perm()|0o700)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("snapshot: creating parent directory for %s: %w", m.relPath, err)
	}
	if err := os.WriteFile(dest, m.content, os.FileMode(m.header.Mode).Perm()); err != nil {
		return fmt.Errorf("snapshot: writing %s: %w", m.relPath, err)
	}
	return os.Chtimes(dest, m.header.ModTime, m.header.ModTime)
}
