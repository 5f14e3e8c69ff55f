/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/trustbloc/shield/pkg/ledger"
	"github.com/trustbloc/shield/pkg/restapi/resterr"
	controller "github.com/trustbloc/shield/pkg/restapi/v1/policy"
	policysvc "github.com/trustbloc/shield/pkg/service/policy"
	"github.com/trustbloc/shield/pkg/service/verification"
)

const testPolicyID = "0x63c1461a21cab3b1234a3123de819a151e8a0f53e194de094c68e1552e4e732f"

type fakePolicyService struct {
	created   *policysvc.CreatedPolicy
	info      *policysvc.Info
	err       error
	revokedID string
}

func (f *fakePolicyService) CreatePolicy(
	_ context.Context, _ *policysvc.CreatePolicyRequest) (*policysvc.CreatedPolicy, error) {
	return f.created, f.err
}

func (f *fakePolicyService) GetPolicyInfo(_ context.Context, _ string) (*policysvc.Info, error) {
	return f.info, f.err
}

func (f *fakePolicyService) RevokePolicy(_ context.Context, policyID string) error {
	f.revokedID = policyID

	return f.err
}

type fakeVerificationService struct {
	result *verification.Result
	err    error
}

func (f *fakeVerificationService) Verify(
	_ context.Context, _ *verification.Request) (*verification.Result, error) {
	return f.result, f.err
}

func echoContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()

	return e.NewContext(req, rec), rec
}

func TestPostPolicies(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour)

		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{created: &policysvc.CreatedPolicy{
				PolicyID:              testPolicyID,
				ResourceCID:           "aa11",
				ReferenceEmbeddingCID: "bb22",
				Expiry:                expiry,
				MaxAttempts:           3,
			}},
		})

		ctx, rec := echoContext(http.MethodPost, "/v1/policies",
			`{"resource":"aGVsbG8=","referenceImage":"aW1n","expirySeconds":3600,"maxAttempts":3}`)

		require.NoError(t, c.PostPolicies(ctx))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp controller.CreatePolicyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, testPolicyID, resp.PolicyID)
		require.Equal(t, "aa11", resp.ResourceCid)
		require.EqualValues(t, 3, resp.MaxAttempts)
	})

	t.Run("invalid body", func(t *testing.T) {
		c := controller.NewController(&controller.Config{PolicyService: &fakePolicyService{}})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies", "not json")

		err := c.PostPolicies(ctx)
		require.Error(t, err)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.InvalidValue, customErr.Code)
	})

	t.Run("validation error from service", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{
				err: fmt.Errorf("%w: maxAttempts must be at least 1", policysvc.ErrInvalidRequest),
			},
		})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies",
			`{"resource":"aGVsbG8=","referenceImage":"aW1n","expirySeconds":3600,"maxAttempts":0}`)

		err := c.PostPolicies(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.InvalidValue, customErr.Code)
	})

	t.Run("system error", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{err: errors.New("mongo down")},
		})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies",
			`{"resource":"aGVsbG8=","referenceImage":"aW1n","expirySeconds":3600,"maxAttempts":3}`)

		err := c.PostPolicies(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.SystemError, customErr.Code)
		require.Equal(t, resterr.PolicySvcComponent, customErr.Component)
	})
}

func TestGetPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{info: &policysvc.Info{
				PolicyID:              testPolicyID,
				ReferenceEmbeddingCID: "bb22",
				Valid:                 true,
				MaxAttempts:           3,
				Attempts:              1,
				RemainingAttempts:     2,
			}},
		})

		ctx, rec := echoContext(http.MethodGet, "/v1/policies/"+testPolicyID, "")
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		require.NoError(t, c.GetPolicy(ctx))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp controller.PolicyInfoResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.IsValid)
		require.Equal(t, "bb22", resp.ReferenceEmbeddingCid)
		require.EqualValues(t, 2, resp.RemainingAttempts)
	})

	t.Run("not found", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{err: policysvc.ErrDataNotFound},
		})

		ctx, _ := echoContext(http.MethodGet, "/v1/policies/"+testPolicyID, "")
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		err := c.GetPolicy(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.PolicyNotFound, customErr.Code)
	})

	t.Run("malformed policy ID", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{err: policysvc.ErrInvalidRequest},
		})

		ctx, _ := echoContext(http.MethodGet, "/v1/policies/not-a-policy-id", "")
		ctx.SetParamNames("policyId")
		ctx.SetParamValues("not-a-policy-id")

		err := c.GetPolicy(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.InvalidValue, customErr.Code)
		require.Equal(t, "policyId", customErr.IncorrectValue)
	})
}

func TestPostPolicyVerify(t *testing.T) {
	t.Run("success outcome", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			VerificationService: &fakeVerificationService{result: &verification.Result{
				Outcome:           verification.OutcomeSuccess,
				Message:           "verified",
				AttemptID:         "att-1",
				Similarity:        0.97,
				AttemptLogged:     true,
				RemainingAttempts: 2,
				Resource:          []byte("plaintext"),
				MimeType:          "text/plain",
				IsText:            true,
			}},
		})

		ctx, rec := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/verify",
			`{"capturedEmbedding":[0.1,0.2]}`)
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		require.NoError(t, c.PostPolicyVerify(ctx))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp controller.VerifyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "success", resp.Outcome)
		require.Equal(t, []byte("plaintext"), resp.Resource)
		require.True(t, resp.AttemptLogged)
	})

	t.Run("failed outcome still 200", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			VerificationService: &fakeVerificationService{result: &verification.Result{
				Outcome:       verification.OutcomeFailed,
				Message:       "biometric mismatch",
				AttemptLogged: true,
			}},
		})

		ctx, rec := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/verify",
			`{"capturedEmbedding":[0.1,0.2]}`)
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		require.NoError(t, c.PostPolicyVerify(ctx))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp controller.VerifyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "failed", resp.Outcome)
		require.Empty(t, resp.Resource)
	})

	t.Run("missing sample", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			VerificationService: &fakeVerificationService{},
		})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/verify", `{}`)
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		err := c.PostPolicyVerify(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.InvalidValue, customErr.Code)
	})

	t.Run("service failure", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			VerificationService: &fakeVerificationService{err: errors.New("lock unavailable")},
		})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/verify",
			`{"capturedEmbedding":[0.1]}`)
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		err := c.PostPolicyVerify(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.SystemError, customErr.Code)
	})
}

func TestPostPolicyRevoke(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &fakePolicyService{}
		c := controller.NewController(&controller.Config{PolicyService: svc})

		ctx, rec := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/revoke", "")
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		require.NoError(t, c.PostPolicyRevoke(ctx))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, testPolicyID, svc.revokedID)
	})

	t.Run("already revoked", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{err: ledger.ErrPolicyRevoked},
		})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/revoke", "")
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		err := c.PostPolicyRevoke(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.PolicyUnusable, customErr.Code)
	})

	t.Run("not found", func(t *testing.T) {
		c := controller.NewController(&controller.Config{
			PolicyService: &fakePolicyService{err: ledger.ErrPolicyNotFound},
		})

		ctx, _ := echoContext(http.MethodPost, "/v1/policies/"+testPolicyID+"/revoke", "")
		ctx.SetParamNames("policyId")
		ctx.SetParamValues(testPolicyID)

		err := c.PostPolicyRevoke(ctx)

		var customErr *resterr.CustomError
		require.ErrorAs(t, err, &customErr)
		require.Equal(t, resterr.PolicyNotFound, customErr.Code)
	})
}
