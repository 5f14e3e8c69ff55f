/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package locker

import (
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"

	redisclient "github.com/trustbloc/shield/pkg/storage/redis"
)

const (
	lockPrefix        = "policylock:"
	defaultLockExpiry = 30 * time.Second
)

// DistributedLocker hands out redsync mutexes keyed by policy ID so that
// verification attempts for one policy are serialized across gateway nodes.
type DistributedLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewDistributed creates a Locker backed by the Redis client.
func NewDistributed(client *redisclient.Client) *DistributedLocker {
	return &DistributedLocker{
		rs:     redsync.New(goredis.NewPool(client.API())),
		expiry: defaultLockExpiry,
	}
}

// NewMutex returns a distributed lock for the key. The expiry bounds how
// long a crashed node can hold a policy hostage.
func (d *DistributedLocker) NewMutex(key string, opts ...redsync.Option) Lock {
	opts = append([]redsync.Option{redsync.WithExpiry(d.expiry)}, opts...)

	return d.rs.NewMutex(lockPrefix+key, opts...)
}
