/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dataprotect

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZStd is the default sealing compressor. Compression runs before encryption;
// AES-GCM output is incompressible, so the order is fixed. The encoder and
// decoder are shared across calls, EncodeAll/DecodeAll are safe for
// concurrent use.
type ZStd struct {
	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	initErr error
}

func NewZStd() *ZStd {
	return &ZStd{}
}

func (z *ZStd) Compress(input []byte) ([]byte, error) {
	z.once.Do(z.init)

	if z.initErr != nil {
		return nil, z.initErr
	}

	return z.encoder.EncodeAll(input, nil), nil
}

func (z *ZStd) Decompress(input []byte) ([]byte, error) {
	z.once.Do(z.init)

	if z.initErr != nil {
		return nil, z.initErr
	}

	data, err := z.decoder.DecodeAll(input, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}

	return data, nil
}

func (z *ZStd) init() {
	z.encoder, z.initErr = zstd.NewWriter(nil)
	if z.initErr != nil {
		z.initErr = fmt.Errorf("create zstd encoder: %w", z.initErr)

		return
	}

	z.decoder, z.initErr = zstd.NewReader(nil)
	if z.initErr != nil {
		z.initErr = fmt.Errorf("create zstd decoder: %w", z.initErr)
	}
}
