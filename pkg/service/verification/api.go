/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verification

// Outcome is the terminal result of one verification attempt. There are
// exactly four: Success releases the plaintext, Failed consumed an attempt
// on a mismatch, Invalid means the policy is unusable, Error is an
// infrastructure fault that consumed nothing unless stated in the message.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeInvalid Outcome = "invalid"
	OutcomeError   Outcome = "error"
)

// State names a stage of the attempt pipeline, used in logs and traces.
type State string

const (
	StateIdle      State = "idle"
	StateChecking  State = "checking"
	StateComparing State = "comparing"
	StateLogging   State = "logging"
	StateReleasing State = "releasing"
)

// InvalidReason qualifies an Invalid outcome.
type InvalidReason string

const (
	ReasonNotFound          InvalidReason = "notFound"
	ReasonExpired           InvalidReason = "expired"
	ReasonRevoked           InvalidReason = "revoked"
	ReasonAttemptsExhausted InvalidReason = "attemptsExhausted"
	ReasonUnavailable       InvalidReason = "unavailable"
)

// Request carries the captured biometric sample. Either the embedding is
// supplied directly or an image is submitted for server-side extraction.
type Request struct {
	PolicyID          string
	CapturedEmbedding []float64
	CapturedImage     []byte
	CapturedImageType string
}

// Result is the terminal outcome of one attempt. Resource, MimeType and
// IsText are populated only when Outcome is Success.
type Result struct {
	Outcome           Outcome
	Reason            InvalidReason
	Message           string
	PolicyID          string
	AttemptID         string
	Similarity        float64
	AttemptLogged     bool
	RemainingAttempts uint64
	TxHash            string

	Resource []byte
	MimeType string
	IsText   bool
}
