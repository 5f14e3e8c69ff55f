/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

type createPolicyRequest struct {
	PolicyID    string `json:"policyId"`
	Expiry      int64  `json:"expiry"`
	MaxAttempts uint64 `json:"maxAttempts"`
}

type logAttemptRequest struct {
	Success bool `json:"success"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
}

type logAttemptResponse struct {
	Logged   bool   `json:"logged"`
	Attempts uint64 `json:"attempts"`
	TxHash   string `json:"txHash"`
}

type validResponse struct {
	Valid bool `json:"valid"`
}

type policyResponse struct {
	Sender      string `json:"sender"`
	Expiry      int64  `json:"expiry"`
	MaxAttempts uint64 `json:"maxAttempts"`
	Attempts    uint64 `json:"attempts"`
	Valid       bool   `json:"valid"`
}

type errorResponse struct {
	Error string `json:"error"`
}
