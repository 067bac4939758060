// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// uploadTimeout bounds each VMHandle.Upload call.
const uploadTimeout = 60 * time.Second

// uploadWithIntegrityCheck uploads localPath to remotePath and
// guards against the local artifact changing underneath the upload —
// a BLAKE3 digest is taken before VMHandle.Upload is called and again
// immediately after; a mismatch means the bytes that left the host
// were not the bytes this function intended to send, and the upload
// is reported as failed even though VMHandle.Upload itself returned
// no error.
//
// VMHandle exposes no way to read a file back out of the VM, so this
// is the strongest integrity check available at this interface
// boundary: it catches local tampering/corruption around the upload
// window, not corruption introduced by the transport itself (which
// the VM provider's own implementation is responsible for).
func uploadWithIntegrityCheck(ctx context.Context, vm VMHandle, localPath, remotePath string, mode os.FileMode) error {
	before, err := digestFile(localPath)
	if err != nil {
		return fmt.Errorf("hashing %s before upload: %w", localPath, err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	if err := vm.Upload(uploadCtx, localPath, remotePath, mode); err != nil {
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	after, err := digestFile(localPath)
	if err != nil {
		return fmt.Errorf("hashing %s after upload: %w", localPath, err)
	}
	if before != after {
		return fmt.Errorf("integrity check failed for %s: local file changed during upload", localPath)
	}

	return nil
}

func digestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	hasher := blake3.New()
	hasher.Write(data)
	return string(hasher.Sum(nil)), nil
}
