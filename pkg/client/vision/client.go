/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package vision implements the client for the embedding extractor service.
package vision

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
)

const (
	embeddingsEndpoint = "/embeddings"

	defaultMaxRetries   = 2
	defaultRetryBackoff = 300 * time.Millisecond
)

// ErrNoSubjectDetected indicates the extractor found no usable subject in
// the supplied image.
var ErrNoSubjectDetected = errors.New("no subject detected in image")

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the embedding extractor over HTTP.
type Client struct {
	hostURI      string
	client       httpClient
	maxRetries   uint64
	retryBackoff time.Duration
}

// Opt configures Client.
type Opt func(*Client)

// WithMaxRetries sets the number of retries for transient failures.
func WithMaxRetries(maxRetries uint64) Opt {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryBackoff sets the interval between retries.
func WithRetryBackoff(backoff time.Duration) Opt {
	return func(c *Client) {
		c.retryBackoff = backoff
	}
}

// NewClient creates a Client for the extractor at hostURI.
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

type extractResponse struct {
	Embedding []float64 `json:"embedding"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ExtractEmbedding submits the image and returns its embedding vector.
// Transient failures are retried; a 422 (no subject) is terminal.
func (c *Client) ExtractEmbedding(ctx context.Context, image []byte, contentType string) ([]float64, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}

	var embedding []float64

	op := func() error {
		var err error

		embedding, err = c.extract(ctx, image, contentType)
		if err != nil {
			if errors.Is(err, ErrNoSubjectDetected) {
				return backoff.Permanent(err)
			}

			return err
		}

		return nil
	}

	err := backoff.Retry(op,
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryBackoff), c.maxRetries), ctx))
	if err != nil {
		return nil, err
	}

	return embedding, nil
}

func (c *Client) extract(ctx context.Context, image []byte, contentType string) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.hostURI+embeddingsEndpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("create extractor request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extractor: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extractor response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		return nil, ErrNoSubjectDetected
	default:
		var errResp errorResponse

		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			return nil, fmt.Errorf("extractor returned status %d: %s", resp.StatusCode, errResp.Error)
		}

		return nil, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var extracted extractResponse

	if err = json.Unmarshal(body, &extracted); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}

	if len(extracted.Embedding) == 0 {
		return nil, errors.New("extractor returned empty embedding")
	}

	return extracted.Embedding, nil
}
