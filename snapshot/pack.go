// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/primordial-run/primordial/lib/sealed"
	"github.com/primordial-run/primordial/lib/secret"
)

// Options configures Pack and Unpack. Both fields are optional: a
// caller with no vault leaves Recipients/PrivateKey unset and gets a
// plain gzipped tar.
type Options struct {
	// Recipients, if non-empty, seals Pack's returned bytes to these
	// age public keys instead of returning a plain gzipped tar.
	Recipients []string

	// PrivateKey unseals Unpack's input before extracting. Required
	// if and only if the bytes being unpacked were sealed.
	PrivateKey *secret.Buffer

	// Logger receives a warning for each skipped entry (an
	// out-of-tree symlink during Pack). Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Pack walks the four allowlisted subdirectories of homeDir and
// returns a gzipped tar of their contents, preserving file mode and
// modification time. A symlink whose target resolves outside homeDir
// is skipped with a logged warning rather than followed; a symlink
// that resolves inside homeDir is omitted without a warning. Missing
// allowlisted subdirectories are simply absent from the archive, not
// an error.
func Pack(homeDir string, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, dir := range AllowedDirs {
		root := filepath.Join(homeDir, dir)
		info, err := os.Lstat(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("snapshot: stat %s: %w", root, err)
		}
		if !info.IsDir() {
			continue
		}

		if err := addTree(tw, opts.logger(), homeDir, root); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: closing gzip writer: %w", err)
	}

	if len(opts.Recipients) == 0 {
		return buf.Bytes(), nil
	}

	armored, err := sealed.Encrypt(buf.Bytes(), opts.Recipients)
	if err != nil {
		return nil, fmt.Errorf("snapshot: sealing packed state: %w", err)
	}
	return []byte(armored), nil
}

func addTree(tw *tar.Writer, logger *slog.Logger, homeDir, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("snapshot: walking %s: %w", path, err)
		}

		relName, relErr := filepath.Rel(homeDir, path)
		if relErr != nil {
			return fmt.Errorf("snapshot: relativizing %s: %w", path, relErr)
		}
		// Tar member names use forward slashes regardless of host OS.
		relName = filepath.ToSlash(relName)

		info, lstatErr := d.Info()
		if lstatErr != nil {
			return fmt.Errorf("snapshot: stat %s: %w", path, lstatErr)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, readErr := os.Readlink(path)
			if readErr != nil {
				return fmt.Errorf("snapshot: reading symlink %s: %w", path, readErr)
			}
			resolved := target
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(filepath.Dir(path), target)
			}
			resolved, evalErr := filepath.EvalSymlinks(resolved)
			if evalErr != nil || !withinTree(homeDir, resolved) {
				logger.Warn("snapshot: skipping symlink pointing outside agent home", "path", relName, "target", target)
				return nil
			}
		}

		if d.IsDir() {
			return writeHeader(tw, relName+"/", info, nil)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("snapshot: reading %s: %w", path, readErr)
		}
		return writeHeader(tw, relName, info, content)
	})
}

func withinTree(root, candidate string) bool {
	rootAbs, err := filepath.EvalSymlinks(root)
	if err != nil {
		rootAbs = root
	}
	rel, err := filepath.Rel(rootAbs, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func writeHeader(tw *tar.Writer, name string, info fs.FileInfo, content []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
		Size:    int64(len(content)),
	}
	if info.IsDir() {
		hdr.Typeflag = tar.TypeDir
		hdr.Size = 0
	} else {
		hdr.Typeflag = tar.TypeReg
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("snapshot: writing tar header for %s: %w", name, err)
	}
	if len(content) > 0 {
		if _, err := tw.Write(content); err != nil {
			return fmt.Errorf("snapshot: writing tar content for %s: %w", name, err)
		}
	}
	return nil
}
