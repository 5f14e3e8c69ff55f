/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import "time"

// CreatePolicyRequest is the POST /v1/policies request body. Binary fields
// are base64-encoded in JSON.
type CreatePolicyRequest struct {
	Resource           []byte `json:"resource"`
	MimeType           string `json:"mimeType,omitempty"`
	IsText             bool   `json:"isText,omitempty"`
	ReferenceImage     []byte `json:"referenceImage"`
	ReferenceImageType string `json:"referenceImageType,omitempty"`
	ExpirySeconds      int64  `json:"expirySeconds"`
	MaxAttempts        uint64 `json:"maxAttempts"`
}

// CreatePolicyResponse is the POST /v1/policies response body.
type CreatePolicyResponse struct {
	PolicyID              string    `json:"policyId"`
	ResourceCid           string    `json:"resourceCid"`
	ReferenceEmbeddingCid string    `json:"referenceEmbeddingCid"`
	Expiry                time.Time `json:"expiry"`
	MaxAttempts           uint64    `json:"maxAttempts"`
}

// PolicyInfoResponse is the GET /v1/policies/{policyId} response body.
type PolicyInfoResponse struct {
	PolicyID              string    `json:"policyId"`
	ReferenceEmbeddingCid string    `json:"referenceEmbeddingCid"`
	IsValid               bool      `json:"isValid"`
	Expiry                time.Time `json:"expiry"`
	MaxAttempts           uint64    `json:"maxAttempts"`
	Attempts              uint64    `json:"attempts"`
	RemainingAttempts     uint64    `json:"remainingAttempts"`
}

// VerifyRequest is the POST /v1/policies/{policyId}/verify request body.
// Either the captured embedding or a captured image must be supplied.
type VerifyRequest struct {
	CapturedEmbedding []float64 `json:"capturedEmbedding,omitempty"`
	CapturedImage     []byte    `json:"capturedImage,omitempty"`
	CapturedImageType string    `json:"capturedImageType,omitempty"`
}

// VerifyResponse is the POST /v1/policies/{policyId}/verify response body.
// Resource, MimeType and IsText are present only when Outcome is "success".
type VerifyResponse struct {
	Outcome           string  `json:"outcome"`
	Reason            string  `json:"reason,omitempty"`
	Message           string  `json:"message,omitempty"`
	AttemptID         string  `json:"attemptId"`
	Similarity        float64 `json:"similarity,omitempty"`
	AttemptLogged     bool    `json:"attemptLogged"`
	RemainingAttempts uint64  `json:"remainingAttempts"`
	TxHash            string  `json:"txHash,omitempty"`

	Resource []byte `json:"resource,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	IsText   bool   `json:"isText,omitempty"`
}
