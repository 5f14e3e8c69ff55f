/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resterr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorCode string

const (
	SystemError     ErrorCode = "system-error"
	Unauthorized    ErrorCode = "unauthorized"
	Forbidden       ErrorCode = "forbidden"
	BadRequest      ErrorCode = "bad-request"
	InvalidValue    ErrorCode = "invalid-value"
	AlreadyExist    ErrorCode = "already-exist"
	DoesntExist     ErrorCode = "doesnt-exist"
	ConditionNotMet ErrorCode = "condition-not-met"
	PolicyNotFound  ErrorCode = "policy-not-found"
	PolicyUnusable  ErrorCode = "policy-unusable"
)

type Component string

const (
	PolicySvcComponent       Component = "policy-service"
	VerificationSvcComponent Component = "verification-service"
	LedgerGatewayComponent   Component = "ledger-gateway"
	VisionClientComponent    Component = "vision-client"
	ContentStoreComponent    Component = "content-store"
	BundleStoreComponent     Component = "bundle-store"
	DataProtectorComponent   Component = "data-protector"
	RedisComponent           Component = "redis-service"
)

func (c ErrorCode) Name() string {
	return string(c)
}

type CustomError struct {
	Code            ErrorCode
	IncorrectValue  string
	Component       Component
	FailedOperation string
	Err             error
}

// NewSystemError creates an error caused by a dependency failure.
func NewSystemError(component Component, failedOperation string, err error) *CustomError {
	return &CustomError{
		Code:            SystemError,
		Component:       component,
		FailedOperation: failedOperation,
		Err:             err,
	}
}

// NewValidationError creates an error caused by an invalid request value.
func NewValidationError(code ErrorCode, incorrectValue string, err error) *CustomError {
	return &CustomError{
		Code:           code,
		IncorrectValue: incorrectValue,
		Err:            err,
	}
}

// NewCustomError creates an error with the given code.
func NewCustomError(code ErrorCode, err error) *CustomError {
	return &CustomError{
		Code: code,
		Err:  err,
	}
}

// NewUnauthorizedError creates an authorization error.
func NewUnauthorizedError(err error) *CustomError {
	return NewCustomError(Unauthorized, err)
}

func (e *CustomError) Error() string {
	var details []string

	if e.Component != "" {
		details = append(details, string(e.Component))
	}

	if e.FailedOperation != "" {
		details = append(details, e.FailedOperation)
	}

	if e.IncorrectValue != "" {
		details = append(details, e.IncorrectValue)
	}

	if len(details) == 0 {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}

	return fmt.Sprintf("%s[%s]: %v", e.Code, strings.Join(details, ", "), e.Err)
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// HTTPCodeMsg maps the error onto an HTTP status and a response body.
func (e *CustomError) HTTPCodeMsg() (int, interface{}) {
	var code int

	switch e.Code { //nolint:exhaustive
	case Unauthorized:
		code = http.StatusUnauthorized
	case Forbidden:
		code = http.StatusForbidden
	case BadRequest, InvalidValue:
		code = http.StatusBadRequest
	case AlreadyExist:
		code = http.StatusConflict
	case DoesntExist, PolicyNotFound:
		code = http.StatusNotFound
	case ConditionNotMet:
		code = http.StatusPreconditionFailed
	case PolicyUnusable:
		code = http.StatusGone
	default:
		code = http.StatusInternalServerError
	}

	return code, map[string]interface{}{
		"code":    e.Code.Name(),
		"message": e.Err.Error(),
	}
}

// GetErrorDetails unwraps err looking for a CustomError and returns its
// message, code and component.
func GetErrorDetails(err error) (string, string, Component) {
	var customErr *CustomError

	if errors.As(err, &customErr) {
		return customErr.Err.Error(), string(customErr.Code), customErr.Component
	}

	return err.Error(), "", ""
}
