/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dataprotect

import (
	"fmt"
)

type dataCipher interface {
	Encrypt(data, key []byte) ([]byte, error)
	Decrypt(data, key []byte) ([]byte, error)
}

// DataProtector composes a Compressor and a cipher: Seal compresses then
// encrypts, Open decrypts then decompresses.
type DataProtector struct {
	cipher      dataCipher
	compression Compression
	compressor  Compressor
}

// NewDataProtector creates a DataProtector.
func NewDataProtector(cipher dataCipher, compression Compression, compressor Compressor) *DataProtector {
	return &DataProtector{
		cipher:      cipher,
		compression: compression,
		compressor:  compressor,
	}
}

// Compression returns the configured compression algorithm, recorded in
// bundle metadata at creation time.
func (d *DataProtector) Compression() Compression {
	return d.compression
}

// Seal compresses and encrypts data with the given key.
func (d *DataProtector) Seal(data, key []byte) ([]byte, error) {
	compressed, err := d.compressor.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}

	encrypted, err := d.cipher.Encrypt(compressed, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	return encrypted, nil
}

// Open decrypts and decompresses data with the given key. The recorded
// compression algorithm must match the configured one.
func (d *DataProtector) Open(data, key []byte, compression Compression) ([]byte, error) {
	if compression != d.compression {
		return nil, fmt.Errorf("bundle compressed with %q, protector configured with %q",
			compression, d.compression)
	}

	decrypted, err := d.cipher.Decrypt(data, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}

	decompressed, err := d.compressor.Decompress(decrypted)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}

	return decompressed, nil
}
