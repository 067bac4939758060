// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// magic identifies a vault file. Changed only if the on-disk format
// itself changes incompatibly (not on every version bump).
var magic = [8]byte{'P', 'R', 'I', 'M', 'V', 'L', 'T', '1'}

const headerVersion = 1

const saltSize = 16

// header is the fixed preamble written before the AEAD ciphertext.
// Layout on disk, in order:
//
//	magic           [8]byte
//	version         uint8
//	iterations      uint32 (big-endian)
//	machineFactorLen uint8
//	machineFactor   []byte (machineFactorLen bytes, "factor:value" form)
//	salt            [16]byte
//	nonce           [24]byte
type header struct {
	version       uint8
	iterations    uint32
	machineFactor string
	salt          [saltSize]byte
	nonce         [chacha20poly1305.NonceSizeX]byte
}

func (h *header) encode() []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(h.version)

	var iterBytes [4]byte
	binary.BigEndian.PutUint32(iterBytes[:], h.iterations)
	buf.Write(iterBytes[:])

	factorBytes := []byte(h.machineFactor)
	buf.WriteByte(uint8(len(factorBytes)))
	buf.Write(factorBytes)

	buf.Write(h.salt[:])
	buf.Write(h.nonce[:])

	return buf.Bytes()
}

// decodeHeader parses the fixed header from the front of data and
// returns the header plus the remaining bytes (the ciphertext).
func decodeHeader(data []byte) (*header, []byte, error) {
	if len(data) < len(magic)+1+4+1 {
		return nil, nil, &CorruptError{Reason: "file too short for header"}
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, nil, &CorruptError{Reason: "bad magic"}
	}
	offset := len(magic)

	version := data[offset]
	offset++
	if version != headerVersion {
		return nil, nil, &CorruptError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	iterations := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4

	factorLen := int(data[offset])
	offset++
	if len(data) < offset+factorLen+saltSize+chacha20poly1305.NonceSizeX {
		return nil, nil, &CorruptError{Reason: "file too short for header"}
	}
	factor := string(data[offset : offset+factorLen])
	offset += factorLen

	h := &header{
		version:       version,
		iterations:    iterations,
		machineFactor: factor,
	}
	copy(h.salt[:], data[offset:offset+saltSize])
	offset += saltSize
	copy(h.nonce[:], data[offset:offset+chacha20poly1305.NonceSizeX])
	offset += chacha20poly1305.NonceSizeX

	return h, data[offset:], nil
}
