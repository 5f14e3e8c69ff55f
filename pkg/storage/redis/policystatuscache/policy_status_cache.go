/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package policystatuscache caches ledger policy status reads with a short
// TTL. The cache serves informational lookups only; attempt admission is
// always decided by the ledger's own atomic check, never by cached state.
package policystatuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisapi "github.com/redis/go-redis/v9"

	"github.com/trustbloc/shield/pkg/ledger"
	"github.com/trustbloc/shield/pkg/storage/redis"
)

const (
	keyPrefix  = "policystatus"
	defaultTTL = 5 * time.Second
)

// ErrStatusNotCached indicates a cache miss.
var ErrStatusNotCached = errors.New("policy status not cached")

// Cache stores recent ledger policy records in redis.
type Cache struct {
	ttl         time.Duration
	redisClient *redis.Client
}

// New creates a new Cache. ttlSec <= 0 selects the default TTL.
func New(redisClient *redis.Client, ttlSec int32) *Cache {
	ttl := defaultTTL
	if ttlSec > 0 {
		ttl = time.Duration(ttlSec) * time.Second
	}

	return &Cache{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

// Put caches the policy record.
func (c *Cache) Put(ctx context.Context, record *ledger.PolicyRecord) error {
	doc := &redisDocument{
		ExpireAt: time.Now().UTC().Add(c.ttl),
		Record:   record,
	}

	if err := c.redisClient.API().Set(ctx, resolveRedisKey(record.ID), doc, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache policy status: %w", err)
	}

	return nil
}

// Get returns the cached policy record, or ErrStatusNotCached on a miss.
func (c *Cache) Get(ctx context.Context, policyID string) (*ledger.PolicyRecord, error) {
	b, err := c.redisClient.API().Get(ctx, resolveRedisKey(policyID)).Bytes()
	if err != nil {
		if errors.Is(err, redisapi.Nil) {
			return nil, ErrStatusNotCached
		}

		return nil, fmt.Errorf("find cached policy status: %w", err)
	}

	var doc redisDocument
	if err = json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("policy status decode: %w", err)
	}

	if doc.ExpireAt.Before(time.Now().UTC()) {
		return nil, ErrStatusNotCached
	}

	return doc.Record, nil
}

// Invalidate drops the cached record, used after revocation and after every
// logged attempt so stale counters are not served.
func (c *Cache) Invalidate(ctx context.Context, policyID string) error {
	if err := c.redisClient.API().Del(ctx, resolveRedisKey(policyID)).Err(); err != nil {
		return fmt.Errorf("invalidate policy status: %w", err)
	}

	return nil
}

func resolveRedisKey(id string) string {
	return fmt.Sprintf("%s-%s", keyPrefix, id)
}
