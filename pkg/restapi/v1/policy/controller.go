/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package policy exposes the policy lifecycle and verification REST API.
package policy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trustbloc/shield/pkg/client/vision"
	"github.com/trustbloc/shield/pkg/ledger"
	"github.com/trustbloc/shield/pkg/observability/metrics/noop"
	"github.com/trustbloc/shield/pkg/restapi/resterr"
	"github.com/trustbloc/shield/pkg/restapi/v1/util"
	policysvc "github.com/trustbloc/shield/pkg/service/policy"
	"github.com/trustbloc/shield/pkg/service/verification"
)

type policyService interface {
	CreatePolicy(ctx context.Context, req *policysvc.CreatePolicyRequest) (*policysvc.CreatedPolicy, error)
	GetPolicyInfo(ctx context.Context, policyID string) (*policysvc.Info, error)
	RevokePolicy(ctx context.Context, policyID string) error
}

type verificationService interface {
	Verify(ctx context.Context, req *verification.Request) (*verification.Result, error)
}

type metricsProvider interface {
	CreatePolicyTime(value time.Duration)
	VerifyTime(value time.Duration)
	VerificationOutcome(outcome string)
}

// Config configures Controller.
type Config struct {
	PolicyService       policyService
	VerificationService verificationService
	Metrics             metricsProvider
}

// Controller for the policy API.
type Controller struct {
	policyService       policyService
	verificationService verificationService
	metrics             metricsProvider
}

// NewController creates Controller.
func NewController(config *Config) *Controller {
	metrics := config.Metrics
	if metrics == nil {
		metrics = noop.GetMetrics()
	}

	return &Controller{
		policyService:       config.PolicyService,
		verificationService: config.VerificationService,
		metrics:             metrics,
	}
}

// RegisterHandlers binds the controller to the echo router.
func RegisterHandlers(router *echo.Echo, controller *Controller) {
	router.POST("/v1/policies", controller.PostPolicies)
	router.GET("/v1/policies/:policyId", controller.GetPolicy)
	router.POST("/v1/policies/:policyId/verify", controller.PostPolicyVerify)
	router.POST("/v1/policies/:policyId/revoke", controller.PostPolicyRevoke)
}

// PostPolicies creates a policy.
// POST /v1/policies.
func (c *Controller) PostPolicies(ctx echo.Context) error {
	var body CreatePolicyRequest

	if err := util.ReadBody(ctx, &body); err != nil {
		return err
	}

	return util.WriteOutput(ctx)(c.createPolicy(ctx.Request().Context(), &body))
}

// GetPolicy returns the informational pre-check for a policy.
// GET /v1/policies/{policyId}.
func (c *Controller) GetPolicy(ctx echo.Context) error {
	policyID := ctx.Param("policyId")

	info, err := c.policyService.GetPolicyInfo(ctx.Request().Context(), policyID)
	if err != nil {
		return mapPolicyError(err, "GetPolicyInfo")
	}

	return util.WriteOutput(ctx)(&PolicyInfoResponse{
		PolicyID:              info.PolicyID,
		ReferenceEmbeddingCid: info.ReferenceEmbeddingCID,
		IsValid:               info.Valid,
		Expiry:                info.Expiry,
		MaxAttempts:           info.MaxAttempts,
		Attempts:              info.Attempts,
		RemainingAttempts:     info.RemainingAttempts,
	}, nil)
}

// PostPolicyVerify runs one verification attempt. The four terminal outcomes
// all map to HTTP 200; the outcome field carries the result.
// POST /v1/policies/{policyId}/verify.
func (c *Controller) PostPolicyVerify(ctx echo.Context) error {
	var body VerifyRequest

	if err := util.ReadBody(ctx, &body); err != nil {
		return err
	}

	if len(body.CapturedEmbedding) == 0 && len(body.CapturedImage) == 0 {
		return resterr.NewValidationError(resterr.InvalidValue, "capturedEmbedding",
			errors.New("capturedEmbedding or capturedImage is required"))
	}

	startTime := time.Now()

	result, err := c.verificationService.Verify(ctx.Request().Context(), &verification.Request{
		PolicyID:          ctx.Param("policyId"),
		CapturedEmbedding: body.CapturedEmbedding,
		CapturedImage:     body.CapturedImage,
		CapturedImageType: body.CapturedImageType,
	})

	c.metrics.VerifyTime(time.Since(startTime))

	if err != nil {
		return resterr.NewSystemError(resterr.VerificationSvcComponent, "Verify", err)
	}

	c.metrics.VerificationOutcome(string(result.Outcome))

	return util.WriteOutput(ctx)(&VerifyResponse{
		Outcome:           string(result.Outcome),
		Reason:            string(result.Reason),
		Message:           result.Message,
		AttemptID:         result.AttemptID,
		Similarity:        result.Similarity,
		AttemptLogged:     result.AttemptLogged,
		RemainingAttempts: result.RemainingAttempts,
		TxHash:            result.TxHash,
		Resource:          result.Resource,
		MimeType:          result.MimeType,
		IsText:            result.IsText,
	}, nil)
}

// PostPolicyRevoke permanently invalidates a policy.
// POST /v1/policies/{policyId}/revoke.
func (c *Controller) PostPolicyRevoke(ctx echo.Context) error {
	policyID := ctx.Param("policyId")

	if err := c.policyService.RevokePolicy(ctx.Request().Context(), policyID); err != nil {
		return mapPolicyError(err, "RevokePolicy")
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) createPolicy(
	ctx context.Context, body *CreatePolicyRequest) (*CreatePolicyResponse, error) {
	startTime := time.Now()

	defer func() {
		c.metrics.CreatePolicyTime(time.Since(startTime))
	}()

	created, err := c.policyService.CreatePolicy(ctx, &policysvc.CreatePolicyRequest{
		Resource:           body.Resource,
		MimeType:           body.MimeType,
		IsText:             body.IsText,
		ReferenceImage:     body.ReferenceImage,
		ReferenceImageType: body.ReferenceImageType,
		ExpirySeconds:      body.ExpirySeconds,
		MaxAttempts:        body.MaxAttempts,
	})
	if err != nil {
		if errors.Is(err, vision.ErrNoSubjectDetected) {
			return nil, resterr.NewValidationError(resterr.InvalidValue, "referenceImage", err)
		}

		if errors.Is(err, policysvc.ErrInvalidRequest) {
			return nil, resterr.NewValidationError(resterr.InvalidValue, "requestBody", err)
		}

		return nil, resterr.NewSystemError(resterr.PolicySvcComponent, "CreatePolicy", err)
	}

	return &CreatePolicyResponse{
		PolicyID:              created.PolicyID,
		ResourceCid:           created.ResourceCID,
		ReferenceEmbeddingCid: created.ReferenceEmbeddingCID,
		Expiry:                created.Expiry,
		MaxAttempts:           created.MaxAttempts,
	}, nil
}

func mapPolicyError(err error, operation string) error {
	switch {
	case errors.Is(err, policysvc.ErrInvalidRequest):
		return resterr.NewValidationError(resterr.InvalidValue, "policyId", err)
	case errors.Is(err, policysvc.ErrDataNotFound), errors.Is(err, ledger.ErrPolicyNotFound):
		return resterr.NewCustomError(resterr.PolicyNotFound, fmt.Errorf("policy not found"))
	case errors.Is(err, ledger.ErrPolicyRevoked), errors.Is(err, ledger.ErrPolicyExpired),
		errors.Is(err, ledger.ErrAttemptsExhausted):
		return resterr.NewCustomError(resterr.PolicyUnusable, err)
	default:
		return resterr.NewSystemError(resterr.PolicySvcComponent, operation, err)
	}
}
