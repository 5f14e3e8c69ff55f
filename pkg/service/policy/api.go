/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import (
	"errors"
	"time"

	"github.com/trustbloc/shield/pkg/dataprotect"
)

var (
	// ErrDataNotFound indicates no bundle metadata exists for the policy.
	ErrDataNotFound = errors.New("data not found")

	// ErrInvalidRequest indicates a malformed creation request.
	ErrInvalidRequest = errors.New("invalid request")
)

// EncryptedBundle is the metadata index entry for one policy: content
// pointers into the store, the raw secret key, and payload attributes. It is
// written exactly once at creation; only Valid is mutable afterwards.
type EncryptedBundle struct {
	PolicyID              string
	ResourceCID           string
	ReferenceEmbeddingCID string
	SecretKey             []byte
	MimeType              string
	IsText                bool
	Compression           dataprotect.Compression
	Valid                 bool
	CreatedAt             time.Time
}

// CreatePolicyRequest carries the owner's resource and the recipient's
// reference image.
type CreatePolicyRequest struct {
	Resource           []byte
	MimeType           string
	IsText             bool
	ReferenceImage     []byte
	ReferenceImageType string
	ExpirySeconds      int64
	MaxAttempts        uint64
}

// CreatedPolicy is returned after the ledger commit and metadata write.
type CreatedPolicy struct {
	PolicyID              string
	ResourceCID           string
	ReferenceEmbeddingCID string
	Expiry                time.Time
	MaxAttempts           uint64
}

// Info is the advisory pre-check view: ledger state plus the reference
// embedding pointer. It is informational only; the ledger re-validates every
// attempt on admission.
type Info struct {
	PolicyID              string
	ReferenceEmbeddingCID string
	Valid                 bool
	Expiry                time.Time
	MaxAttempts           uint64
	Attempts              uint64
	RemainingAttempts     uint64
}
