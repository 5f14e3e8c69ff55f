/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logfields

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log Fields.
const (
	FieldPolicyID          = "policyID"
	FieldAttemptID         = "attemptID"
	FieldAttempts          = "attempts"
	FieldMaxAttempts       = "maxAttempts"
	FieldRemainingAttempts = "remainingAttempts"
	FieldOutcome           = "outcome"
	FieldState             = "state"
	FieldCID               = "cid"
	FieldSimilarity        = "similarity"
	FieldMatchDecision     = "matchDecision"
	FieldExpiry            = "expiry"
	FieldMimeType          = "mimeType"
	FieldDuration          = "duration"
	FieldHTTPStatus        = "httpStatus"
	FieldAddress           = "address"
	FieldLedgerReason      = "ledgerReason"
	FieldUserLogLevel      = "userLogLevel"
)

// WithPolicyID sets the policy ID field.
func WithPolicyID(policyID string) zap.Field {
	return zap.String(FieldPolicyID, policyID)
}

// WithAttemptID sets the verification attempt ID field.
func WithAttemptID(attemptID string) zap.Field {
	return zap.String(FieldAttemptID, attemptID)
}

// WithAttempts sets the logged attempts field.
func WithAttempts(attempts uint64) zap.Field {
	return zap.Uint64(FieldAttempts, attempts)
}

// WithMaxAttempts sets the attempt budget field.
func WithMaxAttempts(maxAttempts uint64) zap.Field {
	return zap.Uint64(FieldMaxAttempts, maxAttempts)
}

// WithRemainingAttempts sets the remaining attempts field.
func WithRemainingAttempts(remaining uint64) zap.Field {
	return zap.Uint64(FieldRemainingAttempts, remaining)
}

// WithOutcome sets the verification outcome field.
func WithOutcome(outcome string) zap.Field {
	return zap.String(FieldOutcome, outcome)
}

// WithState sets the orchestration state field.
func WithState(state string) zap.Field {
	return zap.String(FieldState, state)
}

// WithCID sets the content identifier field.
func WithCID(cid string) zap.Field {
	return zap.String(FieldCID, cid)
}

// WithSimilarity sets the embedding similarity field.
func WithSimilarity(similarity float64) zap.Field {
	return zap.Float64(FieldSimilarity, similarity)
}

// WithMatchDecision sets the match decision field.
func WithMatchDecision(match bool) zap.Field {
	return zap.Bool(FieldMatchDecision, match)
}

// WithExpiry sets the policy expiry field.
func WithExpiry(expiry time.Time) zap.Field {
	return zap.Time(FieldExpiry, expiry)
}

// WithMimeType sets the mime type field.
func WithMimeType(mimeType string) zap.Field {
	return zap.String(FieldMimeType, mimeType)
}

// WithDuration sets the duration field.
func WithDuration(value time.Duration) zap.Field {
	return zap.Duration(FieldDuration, value)
}

// WithHTTPStatus sets the HTTP status field.
func WithHTTPStatus(status int) zap.Field {
	return zap.Int(FieldHTTPStatus, status)
}

// WithAddress sets the address field.
func WithAddress(address string) zap.Field {
	return zap.String(FieldAddress, address)
}

// WithLedgerReason sets the ledger revert reason field.
func WithLedgerReason(reason string) zap.Field {
	return zap.String(FieldLedgerReason, reason)
}

// WithUserLogLevel sets the user log level field.
func WithUserLogLevel(logLevel string) zap.Field {
	return zap.String(FieldUserLogLevel, logLevel)
}

// WithError sets the error field.
func WithError(err error) zap.Field {
	return zap.Error(err)
}

// ObjectMarshaller uses reflection to marshal an object's fields.
type ObjectMarshaller struct {
	key string
	obj interface{}
}

// NewObjectMarshaller returns a new ObjectMarshaller.
func NewObjectMarshaller(key string, obj interface{}) *ObjectMarshaller {
	return &ObjectMarshaller{key: key, obj: obj}
}

// MarshalLogObject marshals the object's fields.
func (m *ObjectMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	return e.AddReflected(m.key, m.obj)
}
