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

func TestZStdRoundTrip(t *testing.T) {
	z := dataprotect.NewZStd()

	data := bytes.Repeat([]byte("shield"), 1000)

	compressed, err := z.Compress(data)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(data))

	decompressed, err := z.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)
}

func TestZStdDecompressInvalid(t *testing.T) {
	z := dataprotect.NewZStd()

	_, err := z.Decompress([]byte("not zstd data"))
	require.Error(t, err)
}
