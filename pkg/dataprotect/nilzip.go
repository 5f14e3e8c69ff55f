/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dataprotect

// NilZip passes payloads through unchanged, for operators that turn resource
// compression off. The bundle still records CompressionNone so the open side
// stays symmetric.
type NilZip struct {
}

func NewNilZip() *NilZip {
	return &NilZip{}
}

func (n *NilZip) Compress(input []byte) ([]byte, error) {
	return input, nil
}

func (n *NilZip) Decompress(input []byte) ([]byte, error) {
	return input, nil
}
