/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dataprotect

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// GZip is the fallback sealing compressor for operators that cannot ship the
// zstd runtime.
type GZip struct {
}

func NewGzip() *GZip {
	return &GZip{}
}

func (g *GZip) Compress(input []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)

	if _, err := w.Write(input); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip flush: %w", err)
	}

	return buf.Bytes(), nil
}

func (g *GZip) Decompress(input []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}

	defer func() {
		_ = r.Close()
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}

	return data, nil
}
