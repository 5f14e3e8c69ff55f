/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger defines the domain model for the external authorization
// ledger. The ledger is the sole owner of policy validity and the attempt
// counter: LogAttempt atomically re-validates the usability predicate
// (valid && now < expiry && attempts < maxAttempts) before incrementing, so
// callers never make release decisions from their own reads.
package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PolicyIDLength is the identifier length in bytes.
const PolicyIDLength = 32

var (
	// ErrPolicyNotFound indicates that no policy is registered under the ID.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPolicyExpired indicates the policy expiry has passed.
	ErrPolicyExpired = errors.New("policy expired")

	// ErrPolicyRevoked indicates the policy was invalidated by its owner.
	ErrPolicyRevoked = errors.New("policy revoked")

	// ErrAttemptsExhausted indicates the attempt budget is spent.
	ErrAttemptsExhausted = errors.New("attempts exhausted")

	// ErrPolicyExists indicates an ID collision on creation.
	ErrPolicyExists = errors.New("policy already exists")

	// ErrWrite indicates a ledger write that failed for infrastructure
	// reasons (network, gateway, rejected transaction) rather than a
	// protocol-level revert.
	ErrWrite = errors.New("ledger write failed")
)

// PolicyRecord is the authoritative policy state as held by the ledger.
type PolicyRecord struct {
	ID          string
	Sender      string
	Expiry      time.Time
	MaxAttempts uint64
	Attempts    uint64
	Valid       bool
}

// Usable reports whether the record satisfies the usability predicate at the
// given instant. This is advisory on the client side; the ledger evaluates
// the same predicate transactionally inside LogAttempt.
func (r *PolicyRecord) Usable(now time.Time) bool {
	return r.Valid && now.Before(r.Expiry) && r.Attempts < r.MaxAttempts
}

// RemainingAttempts returns the unused attempt budget.
func (r *PolicyRecord) RemainingAttempts() uint64 {
	if r.Attempts >= r.MaxAttempts {
		return 0
	}

	return r.MaxAttempts - r.Attempts
}

// AttemptResult is the ledger acknowledgement of a logged attempt.
type AttemptResult struct {
	// Attempts is the counter value after the increment.
	Attempts uint64
	// TxHash identifies the committed ledger transaction.
	TxHash string
}

// NewPolicyID generates a random 256-bit policy identifier in 0x-prefixed hex
// form. Collisions are negligible but creation still checks the ledger
// defensively.
func NewPolicyID() (string, error) {
	raw := make([]byte, PolicyIDLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate policy ID: %w", err)
	}

	return "0x" + hex.EncodeToString(raw), nil
}

// NormalizeID validates a policy identifier and returns its canonical
// 0x-prefixed lower-case form.
func NormalizeID(id string) (string, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")

	if len(trimmed) != PolicyIDLength*2 {
		return "", fmt.Errorf("invalid policy ID length %d", len(trimmed))
	}

	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("invalid policy ID: %w", err)
	}

	return "0x" + trimmed, nil
}

// MapReason maps a ledger revert reason onto the error taxonomy. Unrecognized
// reasons map to ErrWrite with the reason preserved.
func MapReason(reason string) error {
	switch {
	case containsFold(reason, "not exist"), containsFold(reason, "not found"):
		return ErrPolicyNotFound
	case containsFold(reason, "expired"):
		return ErrPolicyExpired
	case containsFold(reason, "revoked"), containsFold(reason, "not valid"):
		return ErrPolicyRevoked
	case containsFold(reason, "attempts"):
		return ErrAttemptsExhausted
	case containsFold(reason, "exists"):
		return ErrPolicyExists
	default:
		return fmt.Errorf("%w: %s", ErrWrite, reason)
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
