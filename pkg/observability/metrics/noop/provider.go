/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noop

import (
	"time"

	"github.com/trustbloc/shield/pkg/observability/metrics"
)

// NoMetrics provides default no operation implementation for the Metrics interface.
type NoMetrics struct{}

// GetMetrics returns metrics implementation.
func GetMetrics() metrics.Metrics {
	return &NoMetrics{}
}

func (n *NoMetrics) CreatePolicyTime(_ time.Duration)     {}
func (n *NoMetrics) VerifyTime(_ time.Duration)           {}
func (n *NoMetrics) LedgerLogAttemptTime(_ time.Duration) {}
func (n *NoMetrics) VerificationOutcome(_ string)         {}
