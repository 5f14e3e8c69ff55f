/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dataprotect seals policy payloads before they leave the service:
// plaintext is compressed, then encrypted with the per-policy symmetric key.
// The scheme is authenticated, so a wrong key or corrupted ciphertext is
// always a distinct failure and never silently yields plaintext.
package dataprotect

import (
	"errors"
	"fmt"
)

// Compression identifies the algorithm applied to plaintext before
// encryption. It is recorded in the bundle metadata so the release path can
// reverse it.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
	CompressionNone Compression = "none"
)

// ErrDecryptionFailed indicates a key mismatch or corrupted ciphertext.
var ErrDecryptionFailed = errors.New("decryption failed")

// Compressor compresses and decompresses payloads.
type Compressor interface {
	Compress(input []byte) ([]byte, error)
	Decompress(input []byte) ([]byte, error)
}

// NewCompressor returns the Compressor for the given algorithm.
func NewCompressor(algorithm Compression) (Compressor, error) {
	switch algorithm {
	case CompressionZstd:
		return NewZStd(), nil
	case CompressionGzip:
		return NewGzip(), nil
	case CompressionNone:
		return NewNilZip(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
}
