/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"
)

// Logger used by different metrics provider.
var Logger = log.New("metrics-provider")

// Constants used by different metrics provider.
const (
	// Namespace Organization namespace.
	Namespace = "shield"

	// Service operations.
	Service                    = "service"
	CreatePolicyTimeMetric     = "service_createPolicy_seconds"
	VerifyTimeMetric           = "service_verify_seconds"
	LedgerLogAttemptTimeMetric = "service_ledgerLogAttempt_seconds"
	VerificationOutcomeMetric  = "service_verificationOutcome_total"
)

// Provider is an interface for metrics provider.
type Provider interface {
	// Create creates a metrics provider instance
	Create() error
	// Destroy destroys the metrics provider instance
	Destroy() error
	// Metrics providers metrics
	Metrics() Metrics
}

// Metrics is an interface for the metrics to be supported by the provider.
type Metrics interface {
	CreatePolicyTime(value time.Duration)
	VerifyTime(value time.Duration)
	LedgerLogAttemptTime(value time.Duration)
	VerificationOutcome(outcome string)
}
