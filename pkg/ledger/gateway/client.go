/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package gateway implements the ledger client against the HTTP ledger
// gateway, the service that holds the server wallet and funnels all contract
// calls. Reads are retried on transient transport failures; LogAttempt is
// issued exactly once because an accepted attempt consumes policy budget.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trustbloc/shield/pkg/ledger"
)

const (
	policiesEndpoint = "/policies"

	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the ledger gateway.
type Client struct {
	hostURI      string
	client       httpClient
	maxRetries   uint64
	retryBackoff time.Duration
}

// Opt configures the Client.
type Opt func(*Client)

// WithMaxRetries sets the read retry budget.
func WithMaxRetries(maxRetries uint64) Opt {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryBackoff sets the initial read retry interval.
func WithRetryBackoff(interval time.Duration) Opt {
	return func(c *Client) {
		c.retryBackoff = interval
	}
}

// NewClient creates a gateway ledger client.
func NewClient(hostURI string, client httpClient, opts ...Opt) *Client {
	c := &Client{
		hostURI:      hostURI,
		client:       client,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreatePolicy registers a policy on the ledger and waits for commit
// confirmation. It is not retried: the caller re-rolls the ID and calls again
// on ledger.ErrPolicyExists.
func (c *Client) CreatePolicy(ctx context.Context, id string, expiry time.Time, maxAttempts uint64) error {
	req := &createPolicyRequest{
		PolicyID:    id,
		Expiry:      expiry.Unix(),
		MaxAttempts: maxAttempts,
	}

	_, err := send[createPolicyRequest, txResponse](
		ctx, c.client, http.MethodPost, c.hostURI+policiesEndpoint, req)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}

	return nil
}

// LogAttempt records a verification attempt. The gateway call commits the
// transaction that atomically re-validates the policy and increments the
// counter; a revert surfaces as one of the taxonomy errors. Never retried.
func (c *Client) LogAttempt(ctx context.Context, id string, success bool) (*ledger.AttemptResult, error) {
	req := &logAttemptRequest{Success: success}

	resp, err := send[logAttemptRequest, logAttemptResponse](
		ctx, c.client, http.MethodPost, c.hostURI+policiesEndpoint+"/"+id+"/attempts", req)
	if err != nil {
		return nil, fmt.Errorf("log attempt: %w", err)
	}

	return &ledger.AttemptResult{
		Attempts: resp.Attempts,
		TxHash:   resp.TxHash,
	}, nil
}

// Revoke flips the policy's validity flag via the owner wallet held by the
// gateway. Not retried: a revert reason tells the caller the terminal state.
func (c *Client) Revoke(ctx context.Context, id string) error {
	_, err := send[struct{}, txResponse](
		ctx, c.client, http.MethodPost, c.hostURI+policiesEndpoint+"/"+id+"/revoke", nil)
	if err != nil {
		return fmt.Errorf("revoke policy: %w", err)
	}

	return nil
}

// IsPolicyValid is the advisory view check of the usability predicate.
func (c *Client) IsPolicyValid(ctx context.Context, id string) (bool, error) {
	var valid bool

	err := c.retryRead(ctx, func() error {
		resp, sendErr := send[struct{}, validResponse](
			ctx, c.client, http.MethodGet, c.hostURI+policiesEndpoint+"/"+id+"/valid", nil)
		if sendErr != nil {
			return sendErr
		}

		valid = resp.Valid

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("is policy valid: %w", err)
	}

	return valid, nil
}

// GetPolicy returns the full authoritative policy record.
func (c *Client) GetPolicy(ctx context.Context, id string) (*ledger.PolicyRecord, error) {
	var record *ledger.PolicyRecord

	err := c.retryRead(ctx, func() error {
		resp, sendErr := send[struct{}, policyResponse](
			ctx, c.client, http.MethodGet, c.hostURI+policiesEndpoint+"/"+id, nil)
		if sendErr != nil {
			return sendErr
		}

		record = &ledger.PolicyRecord{
			ID:          id,
			Sender:      resp.Sender,
			Expiry:      time.Unix(resp.Expiry, 0),
			MaxAttempts: resp.MaxAttempts,
			Attempts:    resp.Attempts,
			Valid:       resp.Valid,
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	return record, nil
}

// retryRead retries op on transport errors only. Protocol errors from the
// taxonomy are permanent and returned as-is.
func (c *Client) retryRead(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryBackoff), c.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		if isProtocolError(err) {
			return backoff.Permanent(err)
		}

		return err
	}, bo)
}

func isProtocolError(err error) bool {
	return errors.Is(err, ledger.ErrPolicyNotFound) ||
		errors.Is(err, ledger.ErrPolicyExpired) ||
		errors.Is(err, ledger.ErrPolicyRevoked) ||
		errors.Is(err, ledger.ErrAttemptsExhausted) ||
		errors.Is(err, ledger.ErrPolicyExists)
}

func send[T any, V any](
	ctx context.Context,
	client httpClient,
	method string,
	url string,
	request *T,
) (*V, error) {
	var buf bytes.Buffer

	if request != nil {
		if reqMarshalErr := json.NewEncoder(&buf).Encode(request); reqMarshalErr != nil {
			return nil, reqMarshalErr
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}

	if request != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, httpErr := client.Do(httpReq)
	if httpErr != nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrWrite, httpErr)
	}

	var body []byte

	if resp.Body != nil {
		defer func() {
			_ = resp.Body.Close()
		}()

		b, bodyErr := io.ReadAll(resp.Body)
		if bodyErr != nil {
			return nil, bodyErr
		}

		body = b
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapErrorResponse(resp.StatusCode, body)
	}

	var final V

	if len(body) > 0 {
		if unmarshalErr := json.Unmarshal(body, &final); unmarshalErr != nil {
			return nil, unmarshalErr
		}
	}

	return &final, nil
}

func mapErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return ledger.MapReason(errResp.Error)
	}

	if statusCode == http.StatusNotFound {
		return ledger.ErrPolicyNotFound
	}

	return fmt.Errorf("%w: unexpected status code %d with body %s",
		ledger.ErrWrite, statusCode, string(body))
}
