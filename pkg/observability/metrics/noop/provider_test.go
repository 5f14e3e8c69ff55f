/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)

	t.Run("Policy service", func(t *testing.T) {
		require.NotPanics(t, func() { m.CreatePolicyTime(time.Second) })
	})

	t.Run("Verification service", func(t *testing.T) {
		require.NotPanics(t, func() { m.VerifyTime(time.Second) })
		require.NotPanics(t, func() { m.LedgerLogAttemptTime(time.Second) })
		require.NotPanics(t, func() { m.VerificationOutcome("success") })
	})
}
