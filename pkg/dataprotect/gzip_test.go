/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dataprotect_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustbloc/shield/pkg/dataprotect"
)

func TestGzipRoundTrip(t *testing.T) {
	g := dataprotect.NewGzip()

	data := bytes.Repeat([]byte("shield"), 1000)

	compressed, err := g.Compress(data)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(data))

	decompressed, err := g.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)
}

func TestGzipDecompressInvalid(t *testing.T) {
	g := dataprotect.NewGzip()

	_, err := g.Decompress([]byte("not gzip data"))
	require.Error(t, err)
}
