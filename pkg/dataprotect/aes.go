/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dataprotect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// KeyLength is the symmetric key size in bytes (AES-256).
const KeyLength = 32

// AES implements AES-GCM encryption with a caller-held key. The nonce is
// prepended to the ciphertext.
type AES struct{}

// NewAES creates an AES cipher.
func NewAES() *AES {
	return &AES{}
}

// NewKey generates a fresh random key.
func (a *AES) NewKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	return key, nil
}

// Encrypt seals data with the given key.
func (a *AES) Encrypt(data, key []byte) ([]byte, error) {
	gcm, err := a.newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens data with the given key. A wrong key or tampered ciphertext
// yields ErrDecryptionFailed.
func (a *AES) Decrypt(data, key []byte) ([]byte, error) {
	gcm, err := a.newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

func (a *AES) newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, errors.New("invalid key length")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
