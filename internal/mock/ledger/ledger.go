/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger provides a faithful in-memory model of the external ledger
// for tests. It enforces the same atomic predicate as the contract: every
// LogAttempt re-validates usability and increments the counter under one
// lock, so concurrency properties hold the way they do on-chain.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/trustbloc/shield/pkg/ledger"
)

// InMemory is a transactionally consistent ledger model.
type InMemory struct {
	mu       sync.Mutex
	policies map[string]*ledger.PolicyRecord
	now      func() time.Time

	// CreateErr, LogErr and ReadErr, when set, are returned by the
	// corresponding operations to simulate infrastructure failures.
	CreateErr error
	LogErr    error
	ReadErr   error
}

// NewInMemory creates an empty ledger model using wall-clock time.
func NewInMemory() *InMemory {
	return &InMemory{
		policies: make(map[string]*ledger.PolicyRecord),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (l *InMemory) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.now = now
}

// CreatePolicy registers a policy.
func (l *InMemory) CreatePolicy(_ context.Context, id string, expiry time.Time, maxAttempts uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.CreateErr != nil {
		return l.CreateErr
	}

	if _, ok := l.policies[id]; ok {
		return ledger.ErrPolicyExists
	}

	l.policies[id] = &ledger.PolicyRecord{
		ID:          id,
		Sender:      "0x0000000000000000000000000000000000000001",
		Expiry:      expiry,
		MaxAttempts: maxAttempts,
		Valid:       true,
	}

	return nil
}

// LogAttempt atomically re-validates the policy and increments the counter.
func (l *InMemory) LogAttempt(_ context.Context, id string, _ bool) (*ledger.AttemptResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.LogErr != nil {
		return nil, l.LogErr
	}

	record, ok := l.policies[id]
	if !ok {
		return nil, ledger.ErrPolicyNotFound
	}

	switch {
	case !record.Valid:
		return nil, ledger.ErrPolicyRevoked
	case !l.now().Before(record.Expiry):
		return nil, ledger.ErrPolicyExpired
	case record.Attempts >= record.MaxAttempts:
		return nil, ledger.ErrAttemptsExhausted
	}

	record.Attempts++

	return &ledger.AttemptResult{
		Attempts: record.Attempts,
		TxHash:   "0xmock",
	}, nil
}

// IsPolicyValid evaluates the usability predicate.
func (l *InMemory) IsPolicyValid(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ReadErr != nil {
		return false, l.ReadErr
	}

	record, ok := l.policies[id]
	if !ok {
		return false, nil
	}

	return record.Usable(l.now()), nil
}

// GetPolicy returns a copy of the policy record.
func (l *InMemory) GetPolicy(_ context.Context, id string) (*ledger.PolicyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ReadErr != nil {
		return nil, l.ReadErr
	}

	record, ok := l.policies[id]
	if !ok {
		return nil, ledger.ErrPolicyNotFound
	}

	copied := *record

	return &copied, nil
}

// Revoke flips the validity flag, modelling the owner-only contract call.
func (l *InMemory) Revoke(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.policies[id]
	if !ok {
		return ledger.ErrPolicyNotFound
	}

	record.Valid = false

	return nil
}
